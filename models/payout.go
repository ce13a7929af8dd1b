package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutHead is the per-participant advance ledger of a travel: one head per
// (travel, participant), created lazily on the first append. Balance is a
// derived quantity; every mutation recomputes it from the entry rows.
type PayoutHead struct {
	ID            int             `gorm:"primary_key" json:"id"`
	TravelId      int             `gorm:"not null;uniqueIndex:idx_travel_participant" json:"travel_id"`
	ParticipantId int             `gorm:"not null;uniqueIndex:idx_travel_participant" json:"participant_id"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"balance"`
	Entries       []*PayoutEntry  `json:"entries"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayoutEntry is append-only. EntryUid is the stable identity used for
// soft deletion; rows never change after insert except the tombstone fields.
type PayoutEntry struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PayoutHeadId int             `gorm:"index;not null" json:"payout_head_id"`
	EntryUid     string          `gorm:"size:36;not null;uniqueIndex" json:"entry_uid"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	EntryDate    time.Time       `gorm:"not null" json:"entry_date"`
	Observation  string          `gorm:"size:255" json:"observation"`
	Status       EntryStatus     `gorm:"type:enum('active','deleted');not null;default:'active';index" json:"status"`
	CreatedBy    int             `gorm:"not null" json:"created_by"`
	DeletedBy    *int            `json:"deleted_by"`
	DeletedAt    *time.Time      `json:"deleted_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayoutEntry struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	EntryDate   time.Time       `json:"entry_date" binding:"required"`
	Observation string          `json:"observation"`
}

func GetPayoutHead(ctx context.Context, id int) (*PayoutHead, error) {
	return utils.FetchModel[PayoutHead](ctx, id, "Entries")
}

func GetPayoutHeadsByTravel(ctx context.Context, travelId int) ([]*PayoutHead, error) {
	db := config.GetDB()
	var heads []*PayoutHead
	err := db.WithContext(ctx).Preload("Entries").
		Where("travel_id = ?", travelId).Find(&heads).Error
	if err != nil {
		return nil, err
	}
	return heads, nil
}

// GetOrCreatePayoutHead runs on the caller's transaction so lazy head
// creation commits or rolls back with the ledger mutation that needed it.
func GetOrCreatePayoutHead(tx *gorm.DB, ctx context.Context, travelId int, participantId int) (*PayoutHead, error) {
	var head PayoutHead
	err := tx.WithContext(ctx).
		Where("travel_id = ? AND participant_id = ?", travelId, participantId).
		First(&head).Error
	if err == nil {
		return &head, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	head = PayoutHead{
		TravelId:      travelId,
		ParticipantId: participantId,
		Balance:       decimal.Zero,
	}
	if err := tx.WithContext(ctx).Create(&head).Error; err != nil {
		// lost the insert race on idx_travel_participant; the winner's row
		// is the head
		if isDuplicateKeyErr(err) {
			var existing PayoutHead
			fetchErr := tx.WithContext(ctx).
				Where("travel_id = ? AND participant_id = ?", travelId, participantId).
				First(&existing).Error
			if fetchErr != nil {
				return nil, fetchErr
			}
			return &existing, nil
		}
		return nil, err
	}
	return &head, nil
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
