package webhook

import (
	"context"
	"time"
)

type Event string

const (
	EventDelivered      Event = "delivered"
	EventUploadFailed   Event = "upload_failed"
	EventRetryExhausted Event = "retry_exhausted"
)

// DeliveryPayload reports how one staged recording left the upload pipeline.
type DeliveryPayload struct {
	Event          Event     `json:"event"`
	DraftKey       string    `json:"draft_key"`
	ChannelID      string    `json:"channel_id"`
	RootID         string    `json:"root_id,omitempty"`
	PostID         string    `json:"post_id,omitempty"`
	FileID         string    `json:"file_id,omitempty"`
	Attempts       int       `json:"attempts"`
	DurationMillis int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Notifier interface {
	NotifyDelivery(ctx context.Context, payload DeliveryPayload) error
}
