package models

import "errors"

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleReviewer UserRole = "reviewer"
	UserRoleStaff    UserRole = "staff"
)

func ParseUserRole(s string) (UserRole, error) {
	userRole := map[string]UserRole{
		"admin":    UserRoleAdmin,
		"reviewer": UserRoleReviewer,
		"staff":    UserRoleStaff,
	}
	role, ok := userRole[s]
	if !ok {
		return "", errors.New("invalid user role")
	}
	return role, nil
}

// admin holds reviewer authority as well
func (r UserRole) HasReviewerAuthority() bool {
	return r == UserRoleAdmin || r == UserRoleReviewer
}

type TravelStatus string

const (
	TravelStatusPending    TravelStatus = "pending"
	TravelStatusApproved   TravelStatus = "approved"
	TravelStatusInProgress TravelStatus = "in_progress"
	TravelStatusCompleted  TravelStatus = "completed"
	TravelStatusCancelled  TravelStatus = "cancelled"
)

func ParseTravelStatus(s string) (TravelStatus, error) {
	travelStatus := map[string]TravelStatus{
		"pending":     TravelStatusPending,
		"approved":    TravelStatusApproved,
		"in_progress": TravelStatusInProgress,
		"completed":   TravelStatusCompleted,
		"cancelled":   TravelStatusCancelled,
	}
	status, ok := travelStatus[s]
	if !ok {
		return "", errors.New("invalid travel status")
	}
	return status, nil
}

type StatementStatus string

const (
	StatementStatusDraft     StatementStatus = "draft"
	StatementStatusSubmitted StatementStatus = "submitted"
	StatementStatusReturned  StatementStatus = "returned"
	StatementStatusApproved  StatementStatus = "approved"
)

func ParseStatementStatus(s string) (StatementStatus, error) {
	statementStatus := map[string]StatementStatus{
		"draft":     StatementStatusDraft,
		"submitted": StatementStatusSubmitted,
		"returned":  StatementStatusReturned,
		"approved":  StatementStatusApproved,
	}
	status, ok := statementStatus[s]
	if !ok {
		return "", errors.New("invalid statement status")
	}
	return status, nil
}

type EntryStatus string

const (
	EntryStatusActive  EntryStatus = "active"
	EntryStatusDeleted EntryStatus = "deleted"
)

type ExpenseCategory string

const (
	ExpenseCategoryFood    ExpenseCategory = "food"
	ExpenseCategoryVehicle ExpenseCategory = "vehicle"
	ExpenseCategoryLodging ExpenseCategory = "lodging"
	ExpenseCategoryOther   ExpenseCategory = "other"
)

func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	expenseCategory := map[string]ExpenseCategory{
		"food":    ExpenseCategoryFood,
		"vehicle": ExpenseCategoryVehicle,
		"lodging": ExpenseCategoryLodging,
		"other":   ExpenseCategoryOther,
	}
	category, ok := expenseCategory[s]
	if !ok {
		return "", errors.New("invalid expense category")
	}
	return category, nil
}

type NotificationEventKind string

const (
	NotificationEventTravelApproved     NotificationEventKind = "TravelApproved"
	NotificationEventTravelRejected     NotificationEventKind = "TravelRejected"
	NotificationEventTravelCancelled    NotificationEventKind = "TravelCancelled"
	NotificationEventStatementSubmitted NotificationEventKind = "StatementSubmitted"
	NotificationEventStatementApproved  NotificationEventKind = "StatementApproved"
	NotificationEventStatementReturned  NotificationEventKind = "StatementReturned"
	NotificationEventStatementAdjusted  NotificationEventKind = "StatementAdjusted"
)

type NotificationReferenceType string

const (
	NotificationReferenceTypeTravel     NotificationReferenceType = "TRAVEL"
	NotificationReferenceTypePayoutHead NotificationReferenceType = "PAYOUT_HEAD"
	NotificationReferenceTypeStatement  NotificationReferenceType = "STATEMENT"
)

// Outbox publish lifecycle. PENDING rows are claimed by the dispatcher,
// FAILED rows are retried with backoff, DEAD rows need manual intervention.
type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)
