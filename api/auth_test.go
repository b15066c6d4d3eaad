package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testBotToken = "12345:TEST-TOKEN"

// signInitData produces init data the way Telegram does: hash over the sorted
// key=value lines, keyed with HMAC("WebAppData", botToken).
func signInitData(t *testing.T, botToken string, values url.Values) string {
	t.Helper()
	pairs := make([]string, 0, len(values))
	for key := range values {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func newTestAuth(now time.Time) *Auth {
	a := NewAuth(testBotToken, "jwt-secret", time.Hour, 24*time.Hour)
	a.now = func() time.Time { return now }
	return a
}

func validValues(authDate time.Time) url.Values {
	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	v.Set("query_id", "AAE1")
	v.Set("user", `{"id":42,"first_name":"Alice"}`)
	return v
}

func TestValidateInitData(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	data := signInitData(t, testBotToken, validValues(now.Add(-time.Minute)))
	userID, err := a.ValidateInitData(data)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != 42 {
		t.Fatalf("user = %d, want 42", userID)
	}
}

func TestValidateInitDataRejectsTampering(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	data := signInitData(t, testBotToken, validValues(now.Add(-time.Minute)))
	tampered := strings.Replace(data, "%22id%22%3A42", "%22id%22%3A43", 1)
	if _, err := a.ValidateInitData(tampered); !errors.Is(err, ErrBadInitData) {
		t.Fatalf("err = %v, want ErrBadInitData", err)
	}
}

func TestValidateInitDataRejectsWrongBot(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	data := signInitData(t, "999:OTHER-TOKEN", validValues(now.Add(-time.Minute)))
	if _, err := a.ValidateInitData(data); !errors.Is(err, ErrBadInitData) {
		t.Fatalf("err = %v, want ErrBadInitData", err)
	}
}

func TestValidateInitDataRejectsStale(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	data := signInitData(t, testBotToken, validValues(now.Add(-48*time.Hour)))
	if _, err := a.ValidateInitData(data); !errors.Is(err, ErrInitDataOld) {
		t.Fatalf("err = %v, want ErrInitDataOld", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	token, err := a.IssueToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, err := a.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 42 {
		t.Fatalf("user = %d, want 42", userID)
	}
}

func TestTokenExpires(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)

	token, err := a.IssueToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	a.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := a.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(now)
	b := NewAuth(testBotToken, "other-secret", time.Hour, 24*time.Hour)
	b.now = a.now

	token, err := a.IssueToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
