package ui

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/core/logger"
	"github.com/raswise/raswise/core/telegram/helpers"
	"github.com/raswise/raswise/core/telegram/keyboard"
)

// Markup converts button rows into a telebot inline keyboard. Empty rows mean
// no keyboard.
func Markup(rows [][]Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]keyboard.InlineBtn, len(rows))
	for i, row := range rows {
		r := make([]keyboard.InlineBtn, len(row))
		for j, b := range row {
			r[j] = keyboard.InlineBtn{Text: b.Label, Unique: b.Action, Data: b.Data}
		}
		kbRows[i] = r
	}
	return keyboard.InlineButtonsRows(kbRows...)
}

// Render applies an outcome to the triggering update: in-place edit first,
// then the callback answer, then the prompt, then best-effort notices to
// other chats. A failed notice is logged and never fails the render.
func Render(c tele.Context, out *Outcome) error {
	if out == nil {
		return nil
	}
	if out.Edit != nil {
		if err := renderEdit(c, out.Edit); err != nil {
			return err
		}
	}
	if out.Alert != "" {
		if c.Callback() != nil {
			_ = c.Respond(&tele.CallbackResponse{Text: out.Alert, ShowAlert: out.ShowAlert})
		} else if err := helpers.SendText(c, out.Alert); err != nil {
			return err
		}
	}
	if out.Prompt != nil {
		var err error
		if markup := Markup(out.Prompt.Buttons); markup != nil {
			err = c.Send(out.Prompt.Text, markup)
		} else {
			err = helpers.SendText(c, out.Prompt.Text)
		}
		if err != nil {
			return err
		}
	}
	for _, n := range out.Notices {
		if c.Chat() != nil && c.Chat().ID == n.ChatID {
			continue
		}
		if _, err := c.Bot().Send(&tele.Chat{ID: n.ChatID}, n.Text); err != nil {
			logger.Warn(context.Background(), "tg", "notice.send_failed",
				slog.Int64("chat_id", n.ChatID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}

func renderEdit(c tele.Context, p *Prompt) error {
	markup := Markup(p.Buttons)
	var err error
	switch {
	case p.Text != "" && markup != nil:
		err = c.Edit(p.Text, markup)
	case p.Text != "":
		err = c.Edit(p.Text)
	case markup != nil:
		err = c.Edit(markup)
	}
	if err != nil && !helpers.IsNotModified(err) {
		return err
	}
	return nil
}
