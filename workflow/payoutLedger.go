package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PayoutBatch is the combined mutation payload an approval or review carries:
// entries to append and entry uids to tombstone, keyed by participant id.
type PayoutBatch struct {
	Pending map[int][]*models.NewPayoutEntry `json:"pending"`
	Deleted map[int][]string                 `json:"deleted"`
}

func (b *PayoutBatch) IsEmpty() bool {
	return b == nil || (len(b.Pending) == 0 && len(b.Deleted) == 0)
}

// ParticipantIds returns every participant the batch touches.
func (b *PayoutBatch) ParticipantIds() []int {
	if b == nil {
		return nil
	}
	var ids []int
	for id := range b.Pending {
		ids = append(ids, id)
	}
	for id := range b.Deleted {
		ids = append(ids, id)
	}
	return ids
}

// splitPayoutEntries separates appendable inputs from non-positive ones.
// Rejected inputs are tolerated, not fatal: they are logged by the caller and
// never get an entry uid.
func splitPayoutEntries(inputs []*models.NewPayoutEntry) (accepted, skipped []*models.NewPayoutEntry) {
	for _, input := range inputs {
		if input.Amount.IsPositive() {
			accepted = append(accepted, input)
		} else {
			skipped = append(skipped, input)
		}
	}
	return accepted, skipped
}

// clampBalance floors a raw active sum at zero, reporting whether the clamp
// fired. Every balance the package persists or returns goes through it.
func clampBalance(raw decimal.Decimal) (decimal.Decimal, bool) {
	if raw.IsNegative() {
		return decimal.Zero, true
	}
	return raw, false
}

// RecomputeBalance is the ground-truth fold: sum of active entries, floored
// at zero. Incremental append/delete must always agree with it.
func RecomputeBalance(entries []*models.PayoutEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Status != models.EntryStatusActive {
			continue
		}
		total = total.Add(e.Amount)
	}
	balance, _ := clampBalance(total)
	return balance
}

// AppendEntries inserts new ledger rows on the head. Non-positive amounts are
// skipped with a WARN instead of failing the whole batch; each accepted entry
// gets a fresh uid. Returns the accepted entries.
func AppendEntries(tx *gorm.DB, ctx context.Context, head *models.PayoutHead, newEntries []*models.NewPayoutEntry, actorId int) ([]*models.PayoutEntry, error) {
	logger := config.GetLogger()

	acceptedInputs, skipped := splitPayoutEntries(newEntries)
	for _, input := range skipped {
		logger.WithFields(logrus.Fields{
			"module":         "PayoutLedger",
			"payout_head_id": head.ID,
			"amount":         input.Amount.String(),
		}).Warn("skipping non-positive payout entry")
	}

	var accepted []*models.PayoutEntry
	for _, input := range acceptedInputs {
		entry := models.PayoutEntry{
			PayoutHeadId: head.ID,
			EntryUid:     uuid.NewString(),
			Amount:       input.Amount,
			EntryDate:    input.EntryDate,
			Observation:  input.Observation,
			Status:       models.EntryStatusActive,
			CreatedBy:    actorId,
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, err
		}
		accepted = append(accepted, &entry)
	}
	return accepted, nil
}

// SoftDeleteEntries tombstones entries by uid. The status='active' guard in
// the UPDATE makes concurrent deletes of the same entry resolve to exactly
// one tombstone; deleting an already-deleted or unknown uid is a no-op.
func SoftDeleteEntries(tx *gorm.DB, ctx context.Context, head *models.PayoutHead, entryUids []string, actorId int) error {
	if len(entryUids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return tx.WithContext(ctx).Model(&models.PayoutEntry{}).
		Where("payout_head_id = ? AND entry_uid IN ? AND status = ?", head.ID, entryUids, models.EntryStatusActive).
		Updates(map[string]interface{}{
			"status":     models.EntryStatusDeleted,
			"deleted_by": actorId,
			"deleted_at": &now,
		}).Error
}

// syncHeadBalance re-reads the head's rows and persists the recomputed
// balance. Recompute-on-write keeps the derived balance honest even when two
// transactions interleave on the same head; a clamp firing means active
// entries summed negative, which is logged loudly because it should be
// impossible with the append-side amount guard.
func syncHeadBalance(tx *gorm.DB, ctx context.Context, head *models.PayoutHead) error {
	var entries []*models.PayoutEntry
	if err := tx.WithContext(ctx).
		Where("payout_head_id = ?", head.ID).Find(&entries).Error; err != nil {
		return err
	}

	raw := decimal.Zero
	for _, e := range entries {
		if e.Status == models.EntryStatusActive {
			raw = raw.Add(e.Amount)
		}
	}
	balance, clamped := clampBalance(raw)
	if clamped {
		logger := config.GetLogger()
		logger.WithFields(logrus.Fields{
			"module":         "PayoutLedger",
			"payout_head_id": head.ID,
			"raw_balance":    raw.String(),
		}).Error("payout balance clamped to zero")
	}

	head.Balance = balance
	return tx.WithContext(ctx).Model(&models.PayoutHead{}).
		Where("id = ?", head.ID).
		Update("balance", balance).Error
}

// ApplyBatch applies a full payout batch on the caller's transaction: heads
// created lazily, appends and soft-deletes applied, every touched head's
// balance recomputed from its rows.
func ApplyBatch(tx *gorm.DB, ctx context.Context, travel *models.Travel, batch *PayoutBatch, actorId int) error {
	if batch.IsEmpty() {
		return nil
	}

	touched := make(map[int]*models.PayoutHead)

	for participantId, newEntries := range batch.Pending {
		head, err := models.GetOrCreatePayoutHead(tx, ctx, travel.ID, participantId)
		if err != nil {
			return err
		}
		if _, err := AppendEntries(tx, ctx, head, newEntries, actorId); err != nil {
			return err
		}
		touched[head.ID] = head
	}

	for participantId, uids := range batch.Deleted {
		head, err := models.GetOrCreatePayoutHead(tx, ctx, travel.ID, participantId)
		if err != nil {
			return err
		}
		if err := SoftDeleteEntries(tx, ctx, head, uids, actorId); err != nil {
			return err
		}
		touched[head.ID] = head
	}

	for _, head := range touched {
		if err := syncHeadBalance(tx, ctx, head); err != nil {
			return err
		}
	}
	return nil
}
