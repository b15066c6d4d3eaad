package payment

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

const sessionExpiredText = "⌛ Session expired. Start again with /pay."

// Register wires the flow's command and callbacks into the registry.
func Register(reg *telegram.Registry, f *Flow) {
	reg.RegisterCommand("/pay", commands.Command{
		Description: "Pay off one of your debts",
		Handler: handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
			var groupID int64
			if chat := c.Chat(); chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup) {
				groupID = chat.ID
			}
			return f.ListUnpaid(ctx, c.Sender().ID, groupID)
		}),
	})

	_ = reg.RegisterCallback(ActionPay, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		splitID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return &ui.Outcome{}, nil
		}
		return f.Begin(ctx, c.Sender().ID, splitID)
	}))
	_ = reg.RegisterCallback(ActionConfirm, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.Confirm(ctx, c.Sender().ID)
	}))
	_ = reg.RegisterCallback(ActionSkip, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.SkipPhoto(ctx, c.Sender().ID)
	}))
	_ = reg.RegisterCallback(ActionCancel, handle(func(ctx context.Context, c tele.Context) (*ui.Outcome, error) {
		return f.Cancel(ctx, c.Sender().ID)
	}))
}

// PhotoHandler adapts the flow for proof photo messages.
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
