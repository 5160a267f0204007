package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIntent(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	// LockIntentByReference returns nil when no intent carries the reference.
	LockIntentByReference(ctx context.Context, db *gorm.DB, externalRef string) (*PaymentIntent, error)
	LockIntent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIntent, error)
	FindIntent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIntent, error)
	// TransitionIntent applies updates only while the intent is still in from.
	TransitionIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, from IntentStatus, updates map[string]any) (bool, error)
	ListIntents(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]PaymentIntent, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, processedAt time.Time) error
}
