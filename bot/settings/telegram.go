package settings

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/commands"
	"github.com/raswise/raswise/core/telegram/helpers"
)

const groupOnlyText = "Please use this command in your group chat."

// Register wires the settings commands into the registry.
func Register(reg *telegram.Registry, svc *Service) {
	reg.RegisterCommand("/setcurrency", commands.Command{
		Description: "Set the group currency symbol",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			out, err := svc.SetCurrency(helpers.BuildContext(c), chat.ID, argsOf(c))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/setreminder", commands.Command{
		Description: "Turn the daily debt reminder on or off",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			out, err := svc.SetReminders(helpers.BuildContext(c), chat.ID, argsOf(c))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/reminderstatus", commands.Command{
		Description: "Show the group settings",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			out, err := svc.Status(helpers.BuildContext(c), chat.ID)
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/settimezone", commands.Command{
		Description: "Set the group's UTC offset for reminders",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, groupOnlyText)
			}
			out, err := svc.SetTimezone(helpers.BuildContext(c), chat.ID, argsOf(c))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})
}

func isGroup(chat *tele.Chat) bool {
	return chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup)
}

// argsOf returns the text after the command itself.
func argsOf(c tele.Context) string {
	text := c.Text()
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return text[i+1:]
	}
	return ""
}
