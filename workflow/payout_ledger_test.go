package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/portal_backend/models"
	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func entry(uid string, amount string, status models.EntryStatus) *models.PayoutEntry {
	return &models.PayoutEntry{EntryUid: uid, Amount: amt(amount), Status: status}
}

func TestRecomputeBalance_SumsActiveOnly(t *testing.T) {
	entries := []*models.PayoutEntry{
		entry("a", "100.50", models.EntryStatusActive),
		entry("b", "49.50", models.EntryStatusActive),
		entry("c", "500.00", models.EntryStatusDeleted),
	}
	got := RecomputeBalance(entries)
	if !got.Equal(amt("150.00")) {
		t.Fatalf("balance = %s, want 150.00", got)
	}
}

func TestRecomputeBalance_EmptyAndAllDeleted(t *testing.T) {
	if got := RecomputeBalance(nil); !got.Equal(decimal.Zero) {
		t.Fatalf("empty ledger balance = %s, want 0", got)
	}
	entries := []*models.PayoutEntry{
		entry("a", "10", models.EntryStatusDeleted),
	}
	if got := RecomputeBalance(entries); !got.Equal(decimal.Zero) {
		t.Fatalf("all-deleted balance = %s, want 0", got)
	}
}

func TestRecomputeBalance_ClampsAtZero(t *testing.T) {
	// negative amounts should never be accepted on append, but a fold over
	// damaged data must still floor at zero
	entries := []*models.PayoutEntry{
		entry("a", "10", models.EntryStatusActive),
		entry("b", "-25", models.EntryStatusActive),
	}
	got := RecomputeBalance(entries)
	if !got.Equal(decimal.Zero) {
		t.Fatalf("balance = %s, want clamp to 0", got)
	}
}

func TestRecomputeBalance_AgreesWithIncrementalTombstoning(t *testing.T) {
	entries := []*models.PayoutEntry{
		entry("a", "100", models.EntryStatusActive),
		entry("b", "30", models.EntryStatusActive),
		entry("c", "70", models.EntryStatusActive),
	}
	before := RecomputeBalance(entries)

	// tombstone "b": incremental balance = before - 30
	entries[1].Status = models.EntryStatusDeleted
	after := RecomputeBalance(entries)

	if !after.Equal(before.Sub(amt("30"))) {
		t.Fatalf("recompute after delete = %s, want %s", after, before.Sub(amt("30")))
	}

	// deleting the same entry again changes nothing
	entries[1].Status = models.EntryStatusDeleted
	if again := RecomputeBalance(entries); !again.Equal(after) {
		t.Fatalf("idempotent delete changed balance: %s -> %s", after, again)
	}
}

func TestSplitPayoutEntries_SkipsNonPositive(t *testing.T) {
	inputs := []*models.NewPayoutEntry{
		{Amount: amt("10")},
		{Amount: amt("0")},
		{Amount: amt("-5")},
		{Amount: amt("2.50")},
	}
	accepted, skipped := splitPayoutEntries(inputs)
	if len(accepted) != 2 || len(skipped) != 2 {
		t.Fatalf("accepted=%d skipped=%d, want 2/2", len(accepted), len(skipped))
	}
	if !accepted[0].Amount.Equal(amt("10")) || !accepted[1].Amount.Equal(amt("2.50")) {
		t.Fatalf("accepted entries out of order: %v", accepted)
	}
	for _, s := range skipped {
		if s.Amount.IsPositive() {
			t.Fatalf("positive amount %s was skipped", s.Amount)
		}
	}
}

func TestClampBalance_AgreesWithRecompute(t *testing.T) {
	entries := []*models.PayoutEntry{
		entry("a", "10", models.EntryStatusActive),
		entry("b", "-25", models.EntryStatusActive),
	}
	raw := amt("10").Add(amt("-25"))

	clamped, fired := clampBalance(raw)
	if !fired {
		t.Fatalf("clamp must fire on a negative sum")
	}
	if !clamped.Equal(RecomputeBalance(entries)) {
		t.Fatalf("clamp=%s disagrees with recompute=%s", clamped, RecomputeBalance(entries))
	}

	ok, fired := clampBalance(amt("12.34"))
	if fired || !ok.Equal(amt("12.34")) {
		t.Fatalf("positive sum must pass through unclamped, got %s fired=%v", ok, fired)
	}
}

func TestPayoutBatch_IsEmptyAndParticipants(t *testing.T) {
	var nilBatch *PayoutBatch
	if !nilBatch.IsEmpty() {
		t.Fatalf("nil batch must be empty")
	}
	if (&PayoutBatch{}).IsEmpty() != true {
		t.Fatalf("zero batch must be empty")
	}

	batch := &PayoutBatch{
		Pending: map[int][]*models.NewPayoutEntry{
			3: {{Amount: amt("10")}},
		},
		Deleted: map[int][]string{
			3: {"uid-1"},
			7: {"uid-2"},
		},
	}
	if batch.IsEmpty() {
		t.Fatalf("batch with content reported empty")
	}
	ids := batch.ParticipantIds()
	seen := map[int]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[3] || !seen[7] {
		t.Fatalf("participant ids = %v, want 3 and 7", ids)
	}
}
