// Package blob abstracts object storage for uploaded photos. Production runs
// against any S3-compatible endpoint (AWS S3, Cloudflare R2); tests use the
// in-memory store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals a missing object.
var ErrNotFound = errors.New("blob: not found")

// Store is the put/get/delete contract the flows depend on.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// PhotoKey builds a collision-free object key for an uploaded photo, bucketed
// by purpose and day.
func PhotoKey(purpose string, userID int64) string {
	return fmt.Sprintf("%s/%s/%d-%s.jpg",
		purpose, time.Now().UTC().Format("2006-01-02"), userID, uuid.NewString())
}
