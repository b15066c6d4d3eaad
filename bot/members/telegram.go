package members

import (
	"database/sql"

	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/commands"
	"github.com/raswise/raswise/core/telegram/helpers"
)

const groupOnlyText = "Please use this command in your group chat."

// Register wires the roster commands into the registry.
func Register(reg *telegram.Registry, svc *Service) {
	reg.RegisterCommand("/register", commands.Command{
		Description: "Register yourself (or a replied-to user) for splitting",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			target := c.Sender()
			if msg := c.Message(); msg != nil && msg.ReplyTo != nil && msg.ReplyTo.Sender != nil {
				target = msg.ReplyTo.Sender
			}
			out, err := svc.Register(helpers.BuildContext(c), chat.ID, c.Sender().ID, UserFrom(target))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/unregister", commands.Command{
		Description: "Leave the splitting roster",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			target := c.Sender()
			if msg := c.Message(); msg != nil && msg.ReplyTo != nil && msg.ReplyTo.Sender != nil {
				target = msg.ReplyTo.Sender
			}
			out, err := svc.Unregister(helpers.BuildContext(c), chat.ID, target.ID, UserFrom(target).DisplayName())
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/listusers", commands.Command{
		Description: "List registered users in this group",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			out, err := svc.List(helpers.BuildContext(c), chat.ID)
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})
}

// TrackerMiddleware passively records group membership as messages flow by.
func TrackerMiddleware(svc *Service) telegram.Middleware {
	return telegram.Middleware{
		Name: "member_tracker",
		Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				if chat := c.Chat(); isGroup(chat) && c.Sender() != nil {
					svc.Track(helpers.BuildContext(c), UserFrom(c.Sender()), chat.ID, chat.Title)
				}
				return next(c)
			}
		},
	}
}

// UserFrom maps a Telegram sender onto the storage model.
func UserFrom(u *tele.User) storage.User {
	return storage.User{
		TelegramID: u.ID,
		Username:   nullString(u.Username),
		FirstName:  nullString(u.FirstName),
		LastName:   nullString(u.LastName),
	}
}

func isGroup(chat *tele.Chat) bool {
	return chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
