// Package api serves the Telegram mini-app: WebApp init-data auth exchanged
// for a JWT, then read endpoints over groups and debts plus a mark-paid
// action that reuses the same settlement guard as the bot flow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/core/logger"
)

const component = "api"

// Config holds the HTTP API settings.
type Config struct {
	Enabled        bool     `yaml:"enabled" envconfig:"API_ENABLED"`
	Addr           string   `yaml:"addr" envconfig:"API_ADDR"`
	JWTSecret      string   `yaml:"jwt_secret" envconfig:"API_JWT_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"API_ALLOWED_ORIGINS"`
}

// Storage is the slice of the database layer the API needs.
type Storage interface {
	UserGroups(ctx context.Context, userID int64) ([]storage.Membership, error)
	GroupMembers(ctx context.Context, groupID int64) ([]storage.User, error)
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	UnpaidSplitsForUser(ctx context.Context, userID, groupID int64) ([]storage.SplitDetail, error)
	OwedToUser(ctx context.Context, userID, groupID int64) ([]storage.SplitDetail, error)
	SummaryForUser(ctx context.Context, userID, groupID int64) (storage.UserSummary, error)
	GetSplitDetail(ctx context.Context, splitID int64) (storage.SplitDetail, error)
	SettleSplit(ctx context.Context, splitID, paidBy, paidTo int64, amount decimal.Decimal, proofKey string) (storage.Payment, error)
}

// Server is the mini-app HTTP server.
type Server struct {
	cfg   Config
	store Storage
	auth  *Auth
	srv   *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg Config, store Storage, auth *Auth) *Server {
	s := &Server{cfg: cfg, store: store, auth: auth}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth", s.handleAuth).Methods(http.MethodPost)

	private := r.PathPrefix("/api").Subrouter()
	private.Use(s.requireToken)
	private.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	private.HandleFunc("/groups/{id}/users", s.handleGroupUsers).Methods(http.MethodGet)
	private.HandleFunc("/groups/{id}/unpaid", s.handleUnpaid).Methods(http.MethodGet)
	private.HandleFunc("/groups/{id}/owed", s.handleOwed).Methods(http.MethodGet)
	private.HandleFunc("/groups/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	private.HandleFunc("/splits/{id}/pay", s.handleMarkPaid).Methods(http.MethodPost)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, component, "api.listen", slog.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info(shutdownCtx, component, "api.shutdown")
		return s.srv.Shutdown(shutdownCtx)
	}
}

type ctxKey int

const userIDKey ctxKey = 0

// requireToken authenticates the bearer token and stashes the user ID.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.auth.ParseToken(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
