// Package messages fetches recent conversation events from the
// messaging provider.
package messages

import (
	"context"

	"hotel-messaging/internal/models"
)

// Source returns recent message events, newest first or in any order.
type Source interface {
	FetchRecent(ctx context.Context, limit int) ([]models.Message, error)
}

// None is a Source with no messages.
type None struct{}

// FetchRecent implements Source.
func (None) FetchRecent(context.Context, int) ([]models.Message, error) { return nil, nil }
