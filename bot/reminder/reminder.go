// Package reminder posts a daily nudge to groups with unpaid debts. Each
// group opts in, picks its local hour, and gets at most one reminder per
// local day.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/money"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/core/logger"
)

const component = "reminder"

// checkInterval is how often the job re-evaluates due groups.
const checkInterval = 15 * time.Minute

// Storage is the slice of the database layer the job needs.
type Storage interface {
	GroupsWithRemindersEnabled(ctx context.Context) ([]storage.GroupSettings, error)
	UnpaidSplitsForGroup(ctx context.Context, groupID int64) ([]storage.SplitDetail, error)
	GetUsers(ctx context.Context, telegramIDs []int64) (map[int64]storage.User, error)
	TouchReminderSent(ctx context.Context, groupID int64, at time.Time) error
}

// SendFunc delivers a reminder to a chat.
type SendFunc func(chatID int64, text string) error

// Job is the periodic reminder worker.
type Job struct {
	store Storage
	send  SendFunc
	now   func() time.Time
}

// NewJob builds a Job.
func NewJob(store Storage, send SendFunc) *Job {
	return &Job{store: store, send: send, now: time.Now}
}

// Run ticks until the context is cancelled. One pass runs immediately so a
// restart near the reminder hour doesn't silently skip the day.
func (j *Job) Run(ctx context.Context) {
	logger.Info(ctx, component, "reminder.job.start")
	j.tick(ctx)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, component, "reminder.job.stop")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

// tick sends reminders to every group that is due.
func (j *Job) tick(ctx context.Context) {
	groups, err := j.store.GroupsWithRemindersEnabled(ctx)
	if err != nil {
		logger.Error(ctx, component, "reminder.groups.load_failed", slog.String("err", err.Error()))
		return
	}
	now := j.now().UTC()
	for _, g := range groups {
		if !j.due(g, now) {
			continue
		}
		if err := j.remind(ctx, g, now); err != nil {
			logger.Error(ctx, component, "reminder.send_failed",
				slog.Int64("group_id", g.GroupID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// due reports whether the group's local reminder hour has passed today and no
// reminder went out yet this local day.
func (j *Job) due(g storage.GroupSettings, nowUTC time.Time) bool {
	offset := time.Duration(g.TimezoneOffset) * time.Hour
	local := nowUTC.Add(offset)
	if local.Hour() < g.ReminderHour {
		return false
	}
	if g.LastReminderAt.Valid {
		lastLocal := g.LastReminderAt.Time.UTC().Add(offset)
		if lastLocal.Year() == local.Year() && lastLocal.YearDay() == local.YearDay() {
			return false
		}
	}
	return true
}

func (j *Job) remind(ctx context.Context, g storage.GroupSettings, now time.Time) error {
	splits, err := j.store.UnpaidSplitsForGroup(ctx, g.GroupID)
	if err != nil {
		return err
	}
	if len(splits) == 0 {
		// nothing owed; still mark the day so due groups stay cheap to scan
		return j.store.TouchReminderSent(ctx, g.GroupID, now)
	}

	text := j.message(ctx, g, splits)
	if err := j.send(g.GroupID, text); err != nil {
		return err
	}
	if err := j.store.TouchReminderSent(ctx, g.GroupID, now); err != nil {
		return err
	}
	logger.Info(ctx, component, "reminder.sent",
		slog.Int64("group_id", g.GroupID),
		slog.Int("unpaid", len(splits)),
	)
	return nil
}

// message aggregates unpaid splits per debtor.
func (j *Job) message(ctx context.Context, g storage.GroupSettings, splits []storage.SplitDetail) string {
	currency := g.Currency
	if currency == "" {
		currency = "$"
	}

	totals := make(map[int64]decimal.Decimal)
	counts := make(map[int64]int)
	ids := make([]int64, 0, len(splits))
	for _, d := range splits {
		if _, ok := totals[d.UserID]; !ok {
			ids = append(ids, d.UserID)
		}
		totals[d.UserID] = totals[d.UserID].Add(d.Amount)
		counts[d.UserID]++
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	users, err := j.store.GetUsers(ctx, ids)
	if err != nil {
		logger.Warn(ctx, component, "reminder.names.load_failed", slog.String("err", err.Error()))
		users = map[int64]storage.User{}
	}

	var b strings.Builder
	b.WriteString("🔔 Friendly reminder! Unpaid debts in this group:\n\n")
	for _, id := range ids {
		name := "User " + strconv.FormatInt(id, 10)
		if u, ok := users[id]; ok {
			name = u.DisplayName()
		}
		fmt.Fprintf(&b, "• %s owes %s", name, money.Format(currency, totals[id]))
		if counts[id] > 1 {
			fmt.Fprintf(&b, " (%d items)", counts[id])
		}
		b.WriteString("\n")
	}
	b.WriteString("\nSettle up with /pay")
	return b.String()
}
