// Package notify fans share updates out to live viewers.
package notify

import (
	"context"
	"time"

	"quicktext/internal/server/storage"
)

//go:generate mockgen -source=notify.go -destination=mock_publisher.go -package=notify

// Event describes a content change on a share.
type Event struct {
	Code        string              `json:"code"`
	Content     string              `json:"content"`
	ContentType storage.ContentType `json:"contentType"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Publisher delivers update events to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
