package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/core/logger"
)

type groupDTO struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type userDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type splitDTO struct {
	ID            int64     `json:"id"`
	ExpenseNumber int64     `json:"expense_number"`
	GroupID       int64     `json:"group_id"`
	UserID        int64     `json:"user_id"`
	PaidBy        int64     `json:"paid_by"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description,omitempty"`
	ExpenseAt     time.Time `json:"expense_at"`
}

type summaryDTO struct {
	OwedByUser string `json:"owed_by_user"`
	OwedToUser string `json:"owed_to_user"`
	PaidByUser string `json:"paid_by_user"`
}

func splitToDTO(d storage.SplitDetail) splitDTO {
	return splitDTO{
		ID:            d.ID,
		ExpenseNumber: d.Number,
		GroupID:       d.GroupID,
		UserID:        d.UserID,
		PaidBy:        d.PaidBy,
		Amount:        d.Amount.StringFixed(2),
		Description:   d.Description.String,
		ExpenseAt:     d.ExpenseAt,
	}
}

// handleAuth exchanges WebApp init data for a bearer token.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InitData string `json:"init_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.InitData == "" {
		writeError(w, http.StatusBadRequest, "init_data required")
		return
	}
	userID, err := s.auth.ValidateInitData(body.InitData)
	if err != nil {
		logger.Warn(r.Context(), component, "api.auth.rejected", slog.String("err", err.Error()))
		writeError(w, http.StatusUnauthorized, "invalid init data")
		return
	}
	token, err := s.auth.IssueToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	logger.Info(r.Context(), component, "api.auth.ok", slog.Int64("user_id", userID))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.UserGroups(r.Context(), userFrom(r))
	if err != nil {
		s.fail(w, r, "api.groups", err)
		return
	}
	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupDTO{ID: g.GroupID, Title: g.GroupTitle.String})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGroupUsers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.memberGroup(w, r)
	if !ok {
		return
	}
	users, err := s.store.GroupMembers(r.Context(), groupID)
	if err != nil {
		s.fail(w, r, "api.group_users", err)
		return
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO{ID: u.TelegramID, Name: u.DisplayName()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnpaid(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.memberGroup(w, r)
	if !ok {
		return
	}
	splits, err := s.store.UnpaidSplitsForUser(r.Context(), userFrom(r), groupID)
	if err != nil {
		s.fail(w, r, "api.unpaid", err)
		return
	}
	out := make([]splitDTO, 0, len(splits))
	for _, d := range splits {
		out = append(out, splitToDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOwed(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.memberGroup(w, r)
	if !ok {
		return
	}
	splits, err := s.store.OwedToUser(r.Context(), userFrom(r), groupID)
	if err != nil {
		s.fail(w, r, "api.owed", err)
		return
	}
	out := make([]splitDTO, 0, len(splits))
	for _, d := range splits {
		out = append(out, splitToDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.memberGroup(w, r)
	if !ok {
		return
	}
	sum, err := s.store.SummaryForUser(r.Context(), userFrom(r), groupID)
	if err != nil {
		s.fail(w, r, "api.summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryDTO{
		OwedByUser: sum.OwedByUser.StringFixed(2),
		OwedToUser: sum.OwedToUser.StringFixed(2),
		PaidByUser: sum.PaidByUser.StringFixed(2),
	})
}

// handleMarkPaid settles a split from the mini-app. Same rules as the bot:
// the split must exist, be unpaid, and belong to the caller; the guarded
// settle refuses a second payment.
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	splitID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid split id")
		return
	}
	userID := userFrom(r)

	d, err := s.store.GetSplitDetail(r.Context(), splitID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "split not found")
		return
	}
	if err != nil {
		s.fail(w, r, "api.mark_paid", err)
		return
	}
	if d.UserID != userID {
		writeError(w, http.StatusForbidden, "not your debt")
		return
	}
	if d.Paid {
		writeError(w, http.StatusConflict, "already paid")
		return
	}

	payment, err := s.store.SettleSplit(r.Context(), splitID, userID, d.PaidBy, d.Amount, "")
	if errors.Is(err, storage.ErrSplitUnavailable) {
		writeError(w, http.StatusConflict, "already paid")
		return
	}
	if err != nil {
		s.fail(w, r, "api.mark_paid", err)
		return
	}
	logger.Info(r.Context(), component, "api.split.paid",
		slog.Int64("split_id", splitID),
		slog.Int64("user_id", userID),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount.StringFixed(2),
	})
}

// memberGroup parses the group ID and checks the caller belongs to it.
func (s *Server) memberGroup(w http.ResponseWriter, r *http.Request) (int64, bool) {
	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return 0, false
	}
	ok, err := s.store.IsGroupMember(r.Context(), groupID, userFrom(r))
	if err != nil {
		s.fail(w, r, "api.member_check", err)
		return 0, false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a group member")
		return 0, false
	}
	return groupID, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.Error(r.Context(), component, event, slog.String("err", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}
