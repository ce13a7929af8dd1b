package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRecord is the transactional outbox: the row is written inside
// the workflow transaction and published to Pub/Sub by the dispatcher after
// commit. Publishing never blocks or fails a workflow commit.
type NotificationRecord struct {
	ID            int                       `gorm:"primary_key" json:"id"`
	RecipientId   int                       `gorm:"index;not null" json:"recipient_id"`
	EventKind     NotificationEventKind     `gorm:"size:64;not null" json:"event_kind"`
	ReferenceId   int                       `gorm:"not null" json:"reference_id"`
	ReferenceType NotificationReferenceType `gorm:"size:32;not null" json:"reference_type"`
	Body          []byte                    `gorm:"type:json" json:"body"`
	PublishStatus OutboxPublishStatus       `gorm:"size:16;not null;default:'PENDING';index" json:"publish_status"`
	Attempts      int                       `gorm:"not null;default:0" json:"attempts"`
	LockedAt      *time.Time                `json:"locked_at"`
	LockedBy      string                    `gorm:"size:64" json:"locked_by"`
	NextAttemptAt *time.Time                `gorm:"index" json:"next_attempt_at"`
	PublishedAt   *time.Time                `json:"published_at"`
	MessageId     string                    `gorm:"size:64" json:"message_id"`
	LastError     string                    `gorm:"size:512" json:"last_error"`
	CorrelationId string                    `gorm:"size:36;index" json:"correlation_id"`
	CreatedAt     time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishNotification writes an outbox row on the caller's transaction.
func PublishNotification(ctx context.Context, tx *gorm.DB, recipientId int, eventKind NotificationEventKind, refType NotificationReferenceType, refId int, payload interface{}) error {
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := NotificationRecord{
		RecipientId:   recipientId,
		EventKind:     eventKind,
		ReferenceId:   refId,
		ReferenceType: refType,
		Body:          body,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
