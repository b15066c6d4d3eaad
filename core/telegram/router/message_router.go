package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/middleware"
)

// Flows defines the minimal interface for conversational flows that consume
// free-form messages while a session is active for the sender.
type Flows interface {
	Active(c tele.Context) bool
	HandleText(c tele.Context) error
	HandlePhoto(c tele.Context) error
}

// MessageOptions controls fallback behaviour for text/photo updates.
type MessageOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownPhoto tele.HandlerFunc
}

// MessageRoutes builds handlers for text and photo routing. Messages are first
// offered to active flows, then matched against registered commands, then
// handed to the configured fallbacks.
func MessageRoutes(flows Flows, reg *tg.Registry, opts MessageOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if flows != nil && flows.Active(c) {
			return handleWithSummary(c, "flow_text", start, func() error {
				return flows.HandleText(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	photoHandler := func(c tele.Context) error {
		start := time.Now()
		if flows != nil && flows.Active(c) {
			return handleWithSummary(c, "flow_photo", start, func() error {
				return flows.HandlePhoto(c)
			})
		}
		if opts.UnknownPhoto != nil {
			return handleWithSummary(c, "unexpected_photo", start, func() error {
				return opts.UnknownPhoto(c)
			})
		}
		logHandlerSummary(c, "unexpected_photo", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler)),
		},
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(photoHandler)),
		},
	}
}
