package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore keeps blobs under slash separated keys.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	// GetObject returns ErrObjectNotFound when key does not exist.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// UpstreamKey is where the raw Genie reply of an exchange is archived.
func UpstreamKey(conversationId string, exchangeId uuid.UUID) string {
	if conversationId == "" {
		conversationId = "_"
	}
	return path.Join("upstream", url.PathEscape(conversationId), exchangeId.String()+".json")
}
