package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ValidateStatementTransition is the authority-gated statement state machine.
// Owners move their statement through draft/submitted and back out of
// returned; review verdicts (approved, returned) require reviewer authority
// and are never self-issued. Reviewers may force a verdict from any state to
// correct mistakes; for the owner, approved is terminal.
func ValidateStatementTransition(current, next models.StatementStatus, isOwner bool, hasReviewerAuthority bool) error {
	switch next {
	case models.StatementStatusApproved, models.StatementStatusReturned:
		if !hasReviewerAuthority {
			return utils.ForbiddenErrorf("reviewer authority required")
		}
		if isOwner {
			return utils.ForbiddenErrorf("cannot review your own statement")
		}
		// force allowed from any state
		return nil

	case models.StatementStatusDraft, models.StatementStatusSubmitted:
		if !isOwner {
			return utils.ForbiddenErrorf("only the statement owner may edit or submit")
		}
		switch current {
		case models.StatementStatusDraft, models.StatementStatusReturned:
			return nil
		case models.StatementStatusSubmitted:
			return utils.ValidationErrorf("statement is under review")
		case models.StatementStatusApproved:
			return utils.ValidationErrorf("statement already approved")
		}
	}
	return utils.ValidationErrorf("invalid statement status transition %s -> %s", current, next)
}

// ReconciliationSummary is the settlement arithmetic between what the
// organization advanced and what the participant spent.
type ReconciliationSummary struct {
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	TotalExpense  decimal.Decimal `json:"total_expense"`
	// BalanceDue > 0: participant refunds; < 0: organization owes abs; 0: settled.
	BalanceDue decimal.Decimal `json:"balance_due"`
}

func Reconcile(ledgerBalance decimal.Decimal, items []*models.StatementItem) ReconciliationSummary {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return ReconciliationSummary{
		LedgerBalance: ledgerBalance,
		TotalExpense:  total,
		BalanceDue:    ledgerBalance.Sub(total),
	}
}

func buildStatementItems(statementId int, inputs []*models.NewStatementItem) ([]*models.StatementItem, error) {
	items := make([]*models.StatementItem, 0, len(inputs))
	for _, input := range inputs {
		category, err := models.ParseExpenseCategory(input.Category)
		if err != nil {
			return nil, utils.ValidationErrorf("%s", err.Error())
		}
		if !input.Amount.IsPositive() {
			return nil, utils.ValidationErrorf("item amount must be positive")
		}
		items = append(items, &models.StatementItem{
			StatementId: statementId,
			Category:    category,
			Description: input.Description,
			Amount:      input.Amount,
		})
	}
	return items, nil
}

// replaceStatementItems rewrites the item set and the derived total in one
// shot; items and status always persist atomically.
func replaceStatementItems(tx *gorm.DB, ctx context.Context, statement *models.AccountabilityStatement, inputs []*models.NewStatementItem) error {
	items, err := buildStatementItems(statement.ID, inputs)
	if err != nil {
		return err
	}

	if err := tx.WithContext(ctx).Where("statement_id = ?", statement.ID).
		Delete(&models.StatementItem{}).Error; err != nil {
		return err
	}
	total := decimal.Zero
	for _, item := range items {
		if err := tx.WithContext(ctx).Create(item).Error; err != nil {
			return err
		}
		total = total.Add(item.Amount)
	}

	statement.Items = items
	statement.TotalAmount = total
	return tx.WithContext(ctx).Model(&models.AccountabilityStatement{}).
		Where("id = ?", statement.ID).
		Update("total_amount", total).Error
}

// SaveStatement persists the statement items and target status in one
// transaction, enforcing the transition table against the caller's identity.
// A head with no statement yet starts from draft.
func SaveStatement(ctx context.Context, payoutHeadId int, nextStatus string, itemInputs []*models.NewStatementItem) (*models.AccountabilityStatement, error) {
	actorId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ForbiddenErrorf("authentication required")
	}
	role, _ := utils.GetUserRoleFromContext(ctx)

	next, err := models.ParseStatementStatus(nextStatus)
	if err != nil {
		return nil, utils.ValidationErrorf("%s", err.Error())
	}

	head, err := models.GetPayoutHead(ctx, payoutHeadId)
	if err != nil {
		return nil, err
	}
	isOwner := head.ParticipantId == actorId

	statement, err := models.GetStatementByHead(ctx, payoutHeadId)
	if err != nil {
		return nil, err
	}
	current := models.StatementStatusDraft
	if statement != nil {
		current = statement.Status
	}

	if err := ValidateStatementTransition(current, next, isOwner, models.UserRole(role).HasReviewerAuthority()); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, []string{PayoutLockKey(payoutHeadId)})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	// the pre-lock transition check only shapes the error; re-read the
	// statement under the lock and let this check decide, so two concurrent
	// writers cannot both act on the same stale status
	statement, err = models.GetStatementByHeadOn(tx, ctx, payoutHeadId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	current = models.StatementStatusDraft
	if statement != nil {
		current = statement.Status
	}
	if err := ValidateStatementTransition(current, next, isOwner, models.UserRole(role).HasReviewerAuthority()); err != nil {
		tx.Rollback()
		return nil, err
	}

	if statement == nil {
		statement = &models.AccountabilityStatement{
			PayoutHeadId: payoutHeadId,
			Status:       next,
		}
		if err := tx.WithContext(ctx).Create(statement).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := replaceStatementItems(tx, ctx, statement, itemInputs); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": next}
	switch next {
	case models.StatementStatusSubmitted:
		updates["submitted_at"] = &now
	case models.StatementStatusApproved, models.StatementStatusReturned:
		updates["reviewed_at"] = &now
		updates["reviewed_by"] = actorId
	}
	if err := tx.WithContext(ctx).Model(&models.AccountabilityStatement{}).
		Where("id = ?", statement.ID).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	statement.Status = next

	if err := writeStatementNotifications(tx, ctx, head, statement, next); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return statement, nil
}

// AdjustApproved is the audited post-approval correction: reviewer-only,
// replaces the item set of an approved statement without reopening it.
func AdjustApproved(ctx context.Context, payoutHeadId int, itemInputs []*models.NewStatementItem) (*models.AccountabilityStatement, error) {
	actorId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ForbiddenErrorf("authentication required")
	}
	role, _ := utils.GetUserRoleFromContext(ctx)
	if !models.UserRole(role).HasReviewerAuthority() {
		return nil, utils.ForbiddenErrorf("reviewer authority required")
	}

	head, err := models.GetPayoutHead(ctx, payoutHeadId)
	if err != nil {
		return nil, err
	}
	statement, err := models.GetStatementByHead(ctx, payoutHeadId)
	if err != nil {
		return nil, err
	}
	if statement == nil {
		return nil, utils.ErrorRecordNotFound
	}
	if statement.Status != models.StatementStatusApproved {
		return nil, utils.ValidationErrorf("only approved statements can be adjusted")
	}

	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, []string{PayoutLockKey(payoutHeadId)})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	// re-read under the lock: only a statement still approved gets adjusted
	statement, err = models.GetStatementByHeadOn(tx, ctx, payoutHeadId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if statement == nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if statement.Status != models.StatementStatusApproved {
		tx.Rollback()
		return nil, utils.ValidationErrorf("only approved statements can be adjusted")
	}

	previousTotal := statement.TotalAmount
	if err := replaceStatementItems(tx, ctx, statement, itemInputs); err != nil {
		tx.Rollback()
		return nil, err
	}

	logger := config.GetLogger()
	logger.WithFields(logrus.Fields{
		"module":         "AccountabilityWorkflow",
		"payout_head_id": payoutHeadId,
		"statement_id":   statement.ID,
		"actor_id":       actorId,
		"previous_total": previousTotal.String(),
		"new_total":      statement.TotalAmount.String(),
	}).Warn("approved statement adjusted")

	if err := models.PublishNotification(ctx, tx, head.ParticipantId,
		models.NotificationEventStatementAdjusted,
		models.NotificationReferenceTypeStatement, statement.ID, statement); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return statement, nil
}

// owner notified of verdicts, reviewers notified of submissions
func writeStatementNotifications(tx *gorm.DB, ctx context.Context, head *models.PayoutHead, statement *models.AccountabilityStatement, next models.StatementStatus) error {
	switch next {
	case models.StatementStatusSubmitted:
		var reviewerIds []int
		if err := tx.WithContext(ctx).Model(&models.User{}).
			Where("role IN ?", []models.UserRole{models.UserRoleAdmin, models.UserRoleReviewer}).
			Pluck("id", &reviewerIds).Error; err != nil {
			return err
		}
		for _, id := range reviewerIds {
			if err := models.PublishNotification(ctx, tx, id,
				models.NotificationEventStatementSubmitted,
				models.NotificationReferenceTypeStatement, statement.ID, statement); err != nil {
				return err
			}
		}
	case models.StatementStatusApproved:
		return models.PublishNotification(ctx, tx, head.ParticipantId,
			models.NotificationEventStatementApproved,
			models.NotificationReferenceTypeStatement, statement.ID, statement)
	case models.StatementStatusReturned:
		return models.PublishNotification(ctx, tx, head.ParticipantId,
			models.NotificationEventStatementReturned,
			models.NotificationReferenceTypeStatement, statement.ID, statement)
	}
	return nil
}
