package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/raswise/raswise/api"
	"github.com/raswise/raswise/bot/account"
	"github.com/raswise/raswise/bot/blob"
	"github.com/raswise/raswise/bot/expense"
	"github.com/raswise/raswise/bot/history"
	"github.com/raswise/raswise/bot/members"
	"github.com/raswise/raswise/bot/payment"
	"github.com/raswise/raswise/bot/reminder"
	"github.com/raswise/raswise/bot/session"
	"github.com/raswise/raswise/bot/settings"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/core/database"
	"github.com/raswise/raswise/core/logger"
	"github.com/raswise/raswise/core/telegram"
	"github.com/raswise/raswise/core/telegram/commands"
	"github.com/raswise/raswise/core/telegram/format"
	"github.com/raswise/raswise/core/telegram/helpers"
	"github.com/raswise/raswise/core/telegram/router"
)

const component = "app"

// Mini-app token lifetimes.
const (
	apiTokenTTL    = time.Hour
	initDataMaxAge = 24 * time.Hour
)

// App holds every long-lived component of the bot process.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	store    *storage.Store
	sessions *session.RedisStore
	registry *telegram.Registry

	expenses *expense.Flow
	payments *payment.Flow
	accounts *account.Flow
	members  *members.Service
	history  *history.Service
	settings *settings.Service
	api      *api.Server
}

// New initializes logging, connects to Postgres and Redis, runs migrations,
// and builds every flow and service. The returned App owns the database and
// session store handles; Run closes them on exit.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(cfg.Database); err != nil {
		_ = db.Close()
		return nil, err
	}

	sessions, err := session.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: redis connect failed: %w", err)
	}

	var blobs blob.Store
	if cfg.Blob.Bucket != "" {
		s3store, err := blob.NewS3Store(ctx, cfg.Blob)
		if err != nil {
			_ = sessions.Close()
			_ = db.Close()
			return nil, fmt.Errorf("app: blob store init failed: %w", err)
		}
		blobs = s3store
	} else {
		// Photos still flow through the pipeline, they just don't survive a
		// restart. Fine for development, set blob.bucket in production.
		logger.Warn(ctx, component, "blob.memory_fallback")
		blobs = blob.NewMemoryStore()
	}

	store := storage.New(db)

	a := &App{
		cfg:      cfg,
		db:       db,
		store:    store,
		sessions: sessions,
		expenses: expense.New(store, blobs, sessions),
		payments: payment.New(store, blobs, sessions),
		accounts: account.New(store, sessions),
		members:  members.NewService(store),
		history:  history.NewService(store),
		settings: settings.NewService(store),
	}
	if cfg.API.Enabled {
		auth := api.NewAuth(cfg.Telegram.Token, cfg.API.JWTSecret, apiTokenTTL, initDataMaxAge)
		a.api = api.NewServer(cfg.API, store, auth)
	}
	a.registry = a.buildRegistry()
	return a, nil
}

// Run drives the Telegram loop until ctx is cancelled, starting the reminder
// job and the mini-app API alongside it.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	flows := newFlowMux(a.expenses, a.payments, a.accounts)

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.MessageRoutes(flows, a.registry, router.MessageOptions{})...)

	mws := telegram.DefaultMiddlewares(&a.cfg.Config, nil)
	mws = append(mws, members.TrackerMiddleware(a.members))

	return telegram.RunTelegram(ctx, telegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Middlewares: mws,
		Routes:      routes,
		OnStart:     a.onStart,
	})
}

func (a *App) onStart(ctx context.Context, rt telegram.Runtime) error {
	job := reminder.NewJob(a.store, func(chatID int64, text string) error {
		_, err := rt.Bot.Send(&tele.Chat{ID: chatID}, text)
		return err
	})
	go job.Run(ctx)

	if a.api != nil {
		go func() {
			if err := a.api.Run(ctx); err != nil {
				logger.Error(ctx, component, "api.stopped", slog.String("err", err.Error()))
			}
		}()
	}
	return nil
}

func (a *App) close() {
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) buildRegistry() *telegram.Registry {
	reg := telegram.NewRegistry()

	expense.Register(reg, a.expenses)
	payment.Register(reg, a.payments)
	account.Register(reg, a.accounts)
	members.Register(reg, a.members)
	history.Register(reg, a.history)
	settings.Register(reg, a.settings)

	reg.RegisterCommand("/start", commands.Command{
		Description: "What this bot does",
		Handler:     a.handleStart,
	})
	reg.RegisterCommand("/help", commands.Command{
		Description: "List available commands",
		Handler:     a.handleHelp,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Description: "Cancel the current operation",
		Handler:     a.handleCancel,
	})
	reg.RegisterCommand("/ping", commands.Command{
		Description: "Liveness check",
		AdminOnly:   true,
		Hidden:      true,
		Handler: func(c tele.Context) error {
			return helpers.SendText(c, "pong")
		},
	})
	return reg
}

func (a *App) handleStart(c tele.Context) error {
	return helpers.SendText(c,
		"👋 Hi! I split group expenses.\n\n"+
			"Add me to a group, have everyone /register, then /addexpense to split a bill. "+
			"Settle debts with /pay and check balances with /summary.\n\n"+
			"/help lists every command.")
}

func (a *App) handleHelp(c tele.Context) error {
	var b strings.Builder
	b.WriteString("📖 *Commands:*\n")
	for _, cmd := range a.registry.ListCommands(true) {
		fmt.Fprintf(&b, "%s — %s\n", cmd.Text, format.EscapeMarkdown(cmd.Description))
	}
	return helpers.SendMD(c, b.String())
}

// handleCancel drops whichever sessions the sender has going. Unlike the
// inline cancel buttons it cannot edit the originating prompt, so it just
// confirms in a fresh message.
func (a *App) handleCancel(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID

	cancelled := false
	for _, abort := range []func(context.Context, int64) (bool, error){
		a.expenses.Abort,
		a.payments.Abort,
		a.accounts.Abort,
	} {
		ok, err := abort(ctx, userID)
		if err != nil {
			return err
		}
		cancelled = cancelled || ok
	}
	if !cancelled {
		return helpers.SendText(c, "Nothing to cancel.")
	}
	return helpers.SendText(c, "❌ Cancelled.")
}

// flowMux offers free-form messages to whichever conversational flow has an
// active session for the sender. Sessions are keyed per flow kind, so the
// dispatch order here decides ties: expense first, then payment, then account.
type flowMux struct {
	expenses *expense.Flow
	payments *payment.Flow
	accounts *account.Flow

	expenseText  tele.HandlerFunc
	accountText  tele.HandlerFunc
	expensePhoto tele.HandlerFunc
	paymentPhoto tele.HandlerFunc
}

func newFlowMux(e *expense.Flow, p *payment.Flow, acc *account.Flow) *flowMux {
	return &flowMux{
		expenses:     e,
		payments:     p,
		accounts:     acc,
		expenseText:  expense.TextHandler(e),
		accountText:  account.TextHandler(acc),
		expensePhoto: expense.PhotoHandler(e),
		paymentPhoto: payment.PhotoHandler(p),
	}
}

func (m *flowMux) Active(c tele.Context) bool {
	if c.Sender() == nil {
		return false
	}
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID
	return m.expenses.Active(ctx, userID) ||
		m.payments.Active(ctx, userID) ||
		m.accounts.Active(ctx, userID)
}

func (m *flowMux) HandleText(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID
	switch {
	case m.expenses.Active(ctx, userID):
		return m.expenseText(c)
	case m.accounts.Active(ctx, userID):
		return m.accountText(c)
	default:
		// The payment flow is keyboard and photo driven; stray text while it
		// is active is ignored.
		return nil
	}
}

func (m *flowMux) HandlePhoto(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID
	switch {
	case m.expenses.Active(ctx, userID):
		return m.expensePhoto(c)
	case m.payments.Active(ctx, userID):
		return m.paymentPhoto(c)
	default:
		return nil
	}
}
