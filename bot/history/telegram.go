package history

import (
	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/commands"
	"github.com/raswise/raswise/core/telegram/helpers"
)

// Register wires the read-only commands into the registry. All of them work
// in a group; /myexpenses and /owed also work in a DM, spanning every group.
func Register(reg *telegram.Registry, svc *Service) {
	reg.RegisterCommand("/history", commands.Command{
		Description: "Recent expenses in this group",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, "Please use /history in your group chat.")
			}
			out, err := svc.Recent(helpers.BuildContext(c), chat.ID)
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/myexpenses", commands.Command{
		Description: "What you still owe",
		Handler: func(c tele.Context) error {
			out, err := svc.Debts(helpers.BuildContext(c), c.Sender().ID, groupIDOf(c))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/owed", commands.Command{
		Description: "What others owe you",
		Handler: func(c tele.Context) error {
			out, err := svc.Owed(helpers.BuildContext(c), c.Sender().ID, groupIDOf(c))
			if err != nil {
				return err
			}
			return ui.Render(c, out)
		},
	})

	reg.RegisterCommand("/summary", commands.Command{
		Description: "Your totals in this group",
		Handler: func(c tele.Context) error {
			chat := c.Chat()
			if !isGroup(chat) {
				return helpers.SendText(c, "Please use /summary in your group chat.")
			}
			out, err := svc.Summary(helpers.BuildContext(c), c.Sender().ID, chat.ID)
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

func groupIDOf(c tele.Context) int64 {
	if chat := c.Chat(); isGroup(chat) {
		return chat.ID
	}
	return 0
}
