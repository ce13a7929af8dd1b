package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/shopspring/decimal"
)

func TestValidateStatementTransition_OwnerPaths(t *testing.T) {
	allowed := []struct{ from, to models.StatementStatus }{
		{models.StatementStatusDraft, models.StatementStatusDraft},
		{models.StatementStatusDraft, models.StatementStatusSubmitted},
		{models.StatementStatusReturned, models.StatementStatusDraft},
		{models.StatementStatusReturned, models.StatementStatusSubmitted},
	}
	for _, tc := range allowed {
		if err := ValidateStatementTransition(tc.from, tc.to, true, false); err != nil {
			t.Fatalf("owner %s -> %s should be allowed: %v", tc.from, tc.to, err)
		}
	}

	// submitted is locked while under review
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusDraft, true, false); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("owner editing a submitted statement: got %v, want ErrValidation", err)
	}
	// approved is terminal for owners
	if err := ValidateStatementTransition(models.StatementStatusApproved, models.StatementStatusSubmitted, true, false); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("owner resubmitting an approved statement: got %v, want ErrValidation", err)
	}
}

func TestValidateStatementTransition_ReviewerVerdicts(t *testing.T) {
	// normal review path
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusApproved, false, true); err != nil {
		t.Fatalf("reviewer approve: %v", err)
	}
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusReturned, false, true); err != nil {
		t.Fatalf("reviewer return: %v", err)
	}
	// reviewers may force a verdict from any state
	for _, from := range []models.StatementStatus{
		models.StatementStatusDraft,
		models.StatementStatusReturned,
		models.StatementStatusApproved,
	} {
		if err := ValidateStatementTransition(from, models.StatementStatusApproved, false, true); err != nil {
			t.Fatalf("reviewer force approve from %s: %v", from, err)
		}
	}
}

func TestValidateStatementTransition_AuthorityDenials(t *testing.T) {
	// no reviewer authority
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusApproved, false, false); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("approve without authority: got %v, want ErrForbidden", err)
	}
	// reviewers never review their own statement
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusApproved, true, true); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("self-approval: got %v, want ErrForbidden", err)
	}
	if err := ValidateStatementTransition(models.StatementStatusSubmitted, models.StatementStatusReturned, true, true); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("self-return: got %v, want ErrForbidden", err)
	}
	// only the owner drafts and submits
	if err := ValidateStatementTransition(models.StatementStatusDraft, models.StatementStatusSubmitted, false, true); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("non-owner submit: got %v, want ErrForbidden", err)
	}
}

func item(category models.ExpenseCategory, amount string) *models.StatementItem {
	return &models.StatementItem{Category: category, Amount: amt(amount)}
}

func TestReconcile(t *testing.T) {
	items := []*models.StatementItem{
		item(models.ExpenseCategoryFood, "30"),
		item(models.ExpenseCategoryLodging, "120"),
		item(models.ExpenseCategoryFood, "10"),
	}

	// advance larger than spend: participant refunds the difference
	s := Reconcile(amt("200"), items)
	if !s.TotalExpense.Equal(amt("160")) {
		t.Fatalf("total expense = %s, want 160", s.TotalExpense)
	}
	if !s.BalanceDue.Equal(amt("40")) {
		t.Fatalf("balance due = %s, want 40", s.BalanceDue)
	}

	// spend larger than advance: organization owes
	s = Reconcile(amt("100"), items)
	if !s.BalanceDue.Equal(amt("-60")) {
		t.Fatalf("balance due = %s, want -60", s.BalanceDue)
	}

	// settled
	s = Reconcile(amt("160"), items)
	if !s.BalanceDue.Equal(decimal.Zero) {
		t.Fatalf("balance due = %s, want 0", s.BalanceDue)
	}
}

func TestCategorySubtotals(t *testing.T) {
	statement := &models.AccountabilityStatement{
		Items: []*models.StatementItem{
			item(models.ExpenseCategoryFood, "30"),
			item(models.ExpenseCategoryFood, "20"),
			item(models.ExpenseCategoryVehicle, "75"),
		},
	}
	subtotals := statement.CategorySubtotals()
	if !subtotals[models.ExpenseCategoryFood].Equal(amt("50")) {
		t.Fatalf("food subtotal = %s, want 50", subtotals[models.ExpenseCategoryFood])
	}
	if !subtotals[models.ExpenseCategoryVehicle].Equal(amt("75")) {
		t.Fatalf("vehicle subtotal = %s, want 75", subtotals[models.ExpenseCategoryVehicle])
	}
	if _, ok := subtotals[models.ExpenseCategoryLodging]; ok {
		t.Fatalf("lodging subtotal should be absent")
	}
}
