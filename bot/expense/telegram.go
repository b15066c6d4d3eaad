package expense

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

const sessionExpiredText = "⌛ Session expired. Start again with /addexpense."

// Register wires the flow's command and callbacks into the registry.
func Register(reg *telegram.Registry, f *Flow) {
	reg.RegisterCommand("/addexpense", commands.Command{
		Description: "Add an expense and split it",
		Handler: handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
			chat := c.Chat()
			if chat == nil || (chat.Type != tele.ChatGroup && chat.Type != tele.ChatSuperGroup) {
				return ui.Text("Please use /addexpense in your group chat."), nil
			}
			return f.Start(ctx, c.Sender().ID, chat.ID)
		}),
	})

	_ = reg.RegisterCallback(ActionSkip, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.Skip(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
	}))
	_ = reg.RegisterCallback(ActionUser, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.HandleUserButton(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
	}))
	_ = reg.RegisterCallback(ActionUsersDone, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.UsersDone(ctx, c.Sender().ID)
	}))
	_ = reg.RegisterCallback(ActionPaidBy, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		payerID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return &ui.Outcome{}, nil
		}
		return f.SetPaidBy(ctx, c.Sender().ID, payerID)
	}))
	_ = reg.RegisterCallback(ActionSplit, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.SetSplitType(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
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

// PhotoHandler adapts the flow for photo messages, downloading via the bot
// API.
func PhotoHandler(f *Flow) tele.HandlerFunc {
	return handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.HandlePhoto(ctx, c.Sender().ID, func(context.Context) ([]byte, string, error) {
			return helpers.DownloadPhoto(c)
		})
	})
}

type flowFn func(ctx context.Context, c tele.Context) (*ui.Outcome, error)

func handle(fn flowFn) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		out, err := fn(ctx, c)
		if errors.Is(err, ErrSessionExpired) {
			return renderExpired(c)
		}
		if err != nil {
			return err
		}
		return ui.Render(c, out)
	}
}

func renderExpired(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: sessionExpiredText, ShowAlert: true})
	}
	return helpers.SendText(c, sessionExpiredText)
}
