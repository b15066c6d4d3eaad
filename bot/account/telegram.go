package account

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/callbacks"
	"github.com/raswise/raswise/core/telegram/commands"
	"github.com/raswise/raswise/core/telegram/helpers"
)

const sessionExpiredText = "⌛ Session expired. Start again with /setaccount."

// Register wires the flow's commands and callbacks into the registry.
func Register(reg *telegram.Registry, f *Flow) {
	reg.RegisterCommand("/setaccount", commands.Command{
		Description: "Set your receiving account details",
		Handler: handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
			return f.Start(ctx, c.Sender().ID)
		}),
	})
	reg.RegisterCommand("/viewaccount", commands.Command{
		Description: "Show your account details",
		Handler: handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
			return f.View(ctx, c.Sender().ID)
		}),
	})
	reg.RegisterCommand("/accountinfo", commands.Command{
		Description: "Show someone's account details (reply to them)",
		Handler: handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
			msg := c.Message()
			if msg == nil || msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
				return ui.Text("Reply to a message from the person whose account you need."), nil
			}
			target := msg.ReplyTo.Sender
			name := target.FirstName
			if name == "" {
				name = target.Username
			}
			return f.InfoFor(ctx, target.ID, name)
		}),
	})

	_ = reg.RegisterCallback(ActionType, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.SetType(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
	}))
	_ = reg.RegisterCallback(ActionCancel, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.Cancel(ctx, c.Sender().ID)
	}))
}

// TextHandler adapts the flow for the message router's flows-first dispatch.
func TextHandler(f *Flow) tele.HandlerFunc {
	return handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.HandleText(ctx, c.Sender().ID, c.Text())
	})
}

type flowFn func(ctx context.Context, c tele.Context) (*ui.Outcome, error)

func handle(fn flowFn) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		out, err := fn(ctx, c)
		if errors.Is(err, ErrSessionExpired) {
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: sessionExpiredText, ShowAlert: true})
			}
			return helpers.SendText(c, sessionExpiredText)
		}
		if err != nil {
			return err
		}
		return ui.Render(c, out)
	}
}
