package sms

import (
	"context"
	"time"
)

// Batch kinds.
const (
	KindBulk     = "bulk"
	KindBirthday = "birthday"
)

// Batch is the history entry written for every send request.
type Batch struct {
	ID         string    `json:"id" db:"id" bson:"_id"`
	Kind       string    `json:"kind" db:"kind" bson:"kind"`
	Message    string    `json:"message" db:"message" bson:"message"`
	Recipients int       `json:"recipients" db:"recipients" bson:"recipients"`
	Sent       int       `json:"sent" db:"sent" bson:"sent"`
	Failed     int       `json:"failed" db:"failed" bson:"failed"`
	TestMode   bool      `json:"testMode" db:"test_mode" bson:"testMode"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
}

// Stats aggregates the history.
type Stats struct {
	TotalMessagesSent int64 `json:"totalMessagesSent"`
	TotalRecipients   int64 `json:"totalRecipients"`
	SentToday         int64 `json:"sentToday"`
}

// HistoryStore persists send batches.
type HistoryStore interface {
	Append(ctx context.Context, b Batch) error
	// Recent returns the newest batches first.
	Recent(ctx context.Context, limit int) ([]Batch, error)
	// Totals sums every batch; SentToday counts batches created at or after since.
	Totals(ctx context.Context, since time.Time) (Stats, error)
}
