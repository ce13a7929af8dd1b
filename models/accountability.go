package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountabilityStatement is the expense report a participant files against
// their payout head, one statement per head.
type AccountabilityStatement struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PayoutHeadId int             `gorm:"not null;uniqueIndex" json:"payout_head_id"`
	Status       StatementStatus `gorm:"type:enum('draft','submitted','returned','approved');not null;default:'draft'" json:"status"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_amount"`
	SubmittedAt  *time.Time      `json:"submitted_at"`
	ReviewedAt   *time.Time      `json:"reviewed_at"`
	ReviewedBy   *int            `json:"reviewed_by"`
	Items        []*StatementItem `gorm:"foreignKey:StatementId" json:"items"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type StatementItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	StatementId int             `gorm:"index;not null" json:"statement_id"`
	Category    ExpenseCategory `gorm:"type:enum('food','vehicle','lodging','other');not null" json:"category"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewStatementItem struct {
	Category    string          `json:"category" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

func GetStatementByHead(ctx context.Context, payoutHeadId int) (*AccountabilityStatement, error) {
	db := config.GetDB()
	var statement AccountabilityStatement
	err := db.WithContext(ctx).Preload("Items").
		Where("payout_head_id = ?", payoutHeadId).First(&statement).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &statement, nil
}

// GetStatementByHeadOn is the transaction-scoped variant, for re-checks made
// while holding the head's resource lock. (nil, nil) when no statement exists.
func GetStatementByHeadOn(tx *gorm.DB, ctx context.Context, payoutHeadId int) (*AccountabilityStatement, error) {
	var statement AccountabilityStatement
	err := tx.WithContext(ctx).Preload("Items").
		Where("payout_head_id = ?", payoutHeadId).First(&statement).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &statement, nil
}

// CategorySubtotals derives per-category totals from the items.
func (s *AccountabilityStatement) CategorySubtotals() map[ExpenseCategory]decimal.Decimal {
	subtotals := make(map[ExpenseCategory]decimal.Decimal)
	for _, item := range s.Items {
		subtotals[item.Category] = subtotals[item.Category].Add(item.Amount)
	}
	return subtotals
}
