package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
)

func TestValidateTravelTransition_Table(t *testing.T) {
	statuses := []models.TravelStatus{
		models.TravelStatusPending,
		models.TravelStatusApproved,
		models.TravelStatusInProgress,
		models.TravelStatusCompleted,
		models.TravelStatusCancelled,
	}

	allowed := map[[2]models.TravelStatus]bool{
		{models.TravelStatusPending, models.TravelStatusApproved}:     true,
		{models.TravelStatusPending, models.TravelStatusCancelled}:    true,
		{models.TravelStatusApproved, models.TravelStatusPending}:     true, // edit reset
		{models.TravelStatusApproved, models.TravelStatusInProgress}:  true,
		{models.TravelStatusApproved, models.TravelStatusCancelled}:   true,
		{models.TravelStatusInProgress, models.TravelStatusCompleted}: true,
		{models.TravelStatusInProgress, models.TravelStatusCancelled}: true,
	}

	// every pair not explicitly allowed must be rejected
	for _, from := range statuses {
		for _, to := range statuses {
			err := ValidateTravelTransition(from, to)
			if allowed[[2]models.TravelStatus{from, to}] {
				if err != nil {
					t.Fatalf("%s -> %s should be allowed: %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, utils.ErrValidation) {
				t.Fatalf("%s -> %s should be rejected with ErrValidation, got %v", from, to, err)
			}
		}
	}
}

func TestValidateTravelEdit(t *testing.T) {
	now := day(5)

	pending := &models.Travel{Status: models.TravelStatusPending, DepartureTime: day(10)}
	if reset, err := ValidateTravelEdit(pending, now); err != nil || reset {
		t.Fatalf("pending edit: reset=%v err=%v, want free edit", reset, err)
	}

	approvedFuture := &models.Travel{Status: models.TravelStatusApproved, DepartureTime: day(10)}
	reset, err := ValidateTravelEdit(approvedFuture, now)
	if err != nil {
		t.Fatalf("approved-not-departed edit: %v", err)
	}
	if !reset {
		t.Fatalf("approved-not-departed edit must reset to pending")
	}

	// at or after departure the approval window is closed
	for _, departed := range []time.Time{day(5), day(2)} {
		approvedPast := &models.Travel{Status: models.TravelStatusApproved, DepartureTime: departed}
		if _, err := ValidateTravelEdit(approvedPast, now); !errors.Is(err, utils.ErrValidation) {
			t.Fatalf("editing after departure %s: got %v, want ErrValidation", departed, err)
		}
	}

	for _, status := range []models.TravelStatus{
		models.TravelStatusInProgress,
		models.TravelStatusCompleted,
		models.TravelStatusCancelled,
	} {
		tr := &models.Travel{Status: status, DepartureTime: day(10)}
		if _, err := ValidateTravelEdit(tr, now); !errors.Is(err, utils.ErrValidation) {
			t.Fatalf("editing %s travel: got %v, want ErrValidation", status, err)
		}
	}
}

func TestTravelEditUpdates_ResetClearsApproverStamps(t *testing.T) {
	input := &models.NewTravel{
		DriverId:      3,
		Destination:   "depot",
		DepartureTime: day(10),
		ReturnTime:    day(12),
	}

	updates := travelEditUpdates(input, true)
	if updates["status"] != models.TravelStatusPending {
		t.Fatalf("reset edit must write status pending, got %v", updates["status"])
	}
	for _, col := range []string{"approved_by", "approved_at"} {
		v, ok := updates[col]
		if !ok {
			t.Fatalf("reset edit must clear %s", col)
		}
		if v != nil {
			t.Fatalf("reset edit must null %s, got %v", col, v)
		}
	}

	plain := travelEditUpdates(input, false)
	for _, col := range []string{"status", "approved_by", "approved_at"} {
		if _, ok := plain[col]; ok {
			t.Fatalf("plain edit must not touch %s", col)
		}
	}
}

func TestValidateApprovalVehicle(t *testing.T) {
	// no vehicle chosen: approval proceeds without an allocation
	if err := validateApprovalVehicle(nil); err != nil {
		t.Fatalf("approval without a vehicle: %v", err)
	}
	active := &models.Vehicle{ID: 5, IsActive: utils.NewTrue()}
	if err := validateApprovalVehicle(active); err != nil {
		t.Fatalf("active vehicle: %v", err)
	}
	inactive := &models.Vehicle{ID: 5, IsActive: utils.NewFalse()}
	if err := validateApprovalVehicle(inactive); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("inactive vehicle: got %v, want ErrValidation", err)
	}
}

func TestValidateTravelTransition_TerminalStates(t *testing.T) {
	for _, from := range []models.TravelStatus{models.TravelStatusCompleted, models.TravelStatusCancelled} {
		for _, to := range []models.TravelStatus{
			models.TravelStatusPending,
			models.TravelStatusApproved,
			models.TravelStatusInProgress,
			models.TravelStatusCompleted,
			models.TravelStatusCancelled,
		} {
			if err := ValidateTravelTransition(from, to); err == nil {
				t.Fatalf("%s is terminal; %s -> %s must fail", from, from, to)
			}
		}
	}
}
