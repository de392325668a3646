// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"notibot/internal/model"
)

// ErrNotFound reports a lookup that matched no row. Callers treat it as
// "nothing to do", not as a failure.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertChat(ctx context.Context, id string, active bool) error
	ListActiveChats(ctx context.Context) ([]model.Chat, error)

	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	ListActiveSubscriptions(ctx context.Context, chatID string) ([]model.Subscription, error)
	ListActiveSubscriptionsByKind(ctx context.Context, chatID string, kind model.ServiceKind) ([]model.Subscription, error)
	FindSubscription(ctx context.Context, chatID string, kind model.ServiceKind) (*model.Subscription, error)
	DeleteSubscription(ctx context.Context, chatID string, kind model.ServiceKind, detail string) (int64, error)

	Close() error
}
