package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/shopspring/decimal"
)

// ValidateTravelTransition is the travel state machine. approved -> pending
// is the explicit reset that editing an approved-not-departed travel takes.
func ValidateTravelTransition(from, to models.TravelStatus) error {
	allowed := map[models.TravelStatus][]models.TravelStatus{
		models.TravelStatusPending:    {models.TravelStatusApproved, models.TravelStatusCancelled},
		models.TravelStatusApproved:   {models.TravelStatusPending, models.TravelStatusInProgress, models.TravelStatusCancelled},
		models.TravelStatusInProgress: {models.TravelStatusCompleted, models.TravelStatusCancelled},
	}
	for _, t := range allowed[from] {
		if t == to {
			return nil
		}
	}
	return utils.ValidationErrorf("invalid travel status transition %s -> %s", from, to)
}

// ValidateTravelEdit decides whether a travel may be edited at `now`, and
// whether the edit must reset it to pending. Pending travels edit freely;
// approved travels edit only before departure and go back through review.
func ValidateTravelEdit(travel *models.Travel, now time.Time) (resetToPending bool, err error) {
	switch travel.Status {
	case models.TravelStatusPending:
		return false, nil
	case models.TravelStatusApproved:
		if !now.Before(travel.DepartureTime) {
			return false, utils.ValidationErrorf("approved travel can no longer be edited after departure")
		}
		if err := ValidateTravelTransition(models.TravelStatusApproved, models.TravelStatusPending); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, utils.ValidationErrorf("travel in status %s cannot be edited", travel.Status)
	}
}

// travelEditUpdates builds the column set an edit writes. A reset to pending
// clears the approver stamps: the approval no longer covers the new content.
func travelEditUpdates(input *models.NewTravel, resetToPending bool) map[string]interface{} {
	needsVehicle := input.NeedsVehicle != nil && *input.NeedsVehicle
	updates := map[string]interface{}{
		"driver_id":      input.DriverId,
		"destination":    input.Destination,
		"purpose":        input.Purpose,
		"departure_time": input.DepartureTime,
		"return_time":    input.ReturnTime,
		"needs_vehicle":  needsVehicle,
	}
	if resetToPending {
		updates["status"] = models.TravelStatusPending
		updates["approved_by"] = nil
		updates["approved_at"] = nil
	}
	return updates
}

// validateApprovalVehicle checks the chosen vehicle, if any. Choosing none is
// always allowed: the travel is approved without an allocation even when it
// asked for a vehicle, and the allocation can follow on a later edit.
func validateApprovalVehicle(vehicle *models.Vehicle) error {
	if vehicle == nil {
		return nil
	}
	if vehicle.IsActive != nil && !*vehicle.IsActive {
		return utils.ValidationErrorf("vehicle is inactive")
	}
	return nil
}

func actorFromContext(ctx context.Context) (int, models.UserRole, error) {
	actorId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return 0, "", utils.ForbiddenErrorf("authentication required")
	}
	role, _ := utils.GetUserRoleFromContext(ctx)
	return actorId, models.UserRole(role), nil
}

func participantLockKeys(participantIds []int) []string {
	keys := make([]string, 0, len(participantIds))
	for _, id := range participantIds {
		keys = append(keys, ParticipantLockKey(id))
	}
	return keys
}

// CreateTravel persists a pending travel. The resource locks are held from
// before the conflict scan until after the insert so a concurrent create
// cannot slip a colliding travel in between; conflicts found are returned as
// warnings, not failures.
func CreateTravel(ctx context.Context, input *models.NewTravel) (*models.Travel, []Conflict, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := input.Validate(ctx, 0); err != nil {
		return nil, nil, err
	}
	if input.DepartureTime.Before(time.Now()) && !role.HasReviewerAuthority() {
		return nil, nil, utils.ForbiddenErrorf("retroactive travels require reviewer authority")
	}

	needsVehicle := input.NeedsVehicle != nil && *input.NeedsVehicle
	participantIds := input.ParticipantIds()

	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, participantLockKeys(participantIds))
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	warnings, err := findConflictsOn(tx, ctx, input.DepartureTime, input.ReturnTime, participantIds, 0, 0,
		[]models.TravelStatus{models.TravelStatusPending, models.TravelStatusApproved})
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	travel := models.Travel{
		RequesterId:   actorId,
		DriverId:      input.DriverId,
		Destination:   input.Destination,
		Purpose:       input.Purpose,
		DepartureTime: input.DepartureTime,
		ReturnTime:    input.ReturnTime,
		NeedsVehicle:  &needsVehicle,
		Status:        models.TravelStatusPending,
	}
	if err := tx.WithContext(ctx).Create(&travel).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	for _, pid := range input.PassengerIds {
		if pid == input.DriverId {
			continue
		}
		passenger := models.TravelPassenger{TravelId: travel.ID, UserId: pid}
		if err := tx.WithContext(ctx).Create(&passenger).Error; err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		travel.Passengers = append(travel.Passengers, &passenger)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}
	return &travel, warnings, nil
}

// UpdateTravel edits a pending or approved-not-departed travel. Editing an
// approved travel resets it to pending and clears the approver stamps: the
// request has materially changed, so it goes back through review.
func UpdateTravel(ctx context.Context, id int, input *models.NewTravel) (*models.Travel, []Conflict, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	isParty := travel.RequesterId == actorId || travel.DriverId == actorId
	if !isParty && !role.HasReviewerAuthority() {
		return nil, nil, utils.ForbiddenErrorf("only the requester, driver or a reviewer may edit a travel")
	}

	if _, err := ValidateTravelEdit(travel, time.Now()); err != nil {
		return nil, nil, err
	}
	if err := input.Validate(ctx, id); err != nil {
		return nil, nil, err
	}

	// lock the travel itself plus the union of old and new participants
	participantIds := utils.UniqueSlice(append(travel.ParticipantIds(), input.ParticipantIds()...))
	keys := append(participantLockKeys(participantIds), TravelLockKey(id))

	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, keys)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	// the pre-lock status read is stale by definition; re-check on the locked
	// connection so a concurrent approve/cancel cannot slip in between
	var fresh models.Travel
	if err := tx.WithContext(ctx).First(&fresh, id).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	resetToPending, err := ValidateTravelEdit(&fresh, time.Now())
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	warnings, err := findConflictsOn(tx, ctx, input.DepartureTime, input.ReturnTime, input.ParticipantIds(), 0, id,
		[]models.TravelStatus{models.TravelStatusPending, models.TravelStatusApproved})
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.WithContext(ctx).Model(&models.Travel{}).
		Where("id = ?", id).Updates(travelEditUpdates(input, resetToPending)).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.WithContext(ctx).Where("travel_id = ?", id).
		Delete(&models.TravelPassenger{}).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	for _, pid := range input.PassengerIds {
		if pid == input.DriverId {
			continue
		}
		passenger := models.TravelPassenger{TravelId: id, UserId: pid}
		if err := tx.WithContext(ctx).Create(&passenger).Error; err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	// keep the allocation's denormalized window in sync with the travel
	if err := tx.WithContext(ctx).Model(&models.VehicleAllocation{}).
		Where("travel_id = ?", id).Updates(map[string]interface{}{
		"start_time": input.DepartureTime,
		"end_time":   input.ReturnTime,
	}).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	updated, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, warnings, nil
}

// ApproveTravel is reviewer-only. All touched resources are locked with
// sorted GET_LOCK keys on the posting transaction, then the vehicle overlap
// is re-checked inside the locked section: a vehicle collision here is a hard
// ErrConflict, participant collisions are surfaced as warnings and left to
// the reviewer's judgment.
func ApproveTravel(ctx context.Context, id int, vehicleId int, batch *PayoutBatch) (*models.Travel, []Conflict, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !role.HasReviewerAuthority() {
		return nil, nil, utils.ForbiddenErrorf("reviewer authority required")
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateTravelTransition(travel.Status, models.TravelStatusApproved); err != nil {
		return nil, nil, err
	}

	var vehicle *models.Vehicle
	if vehicleId > 0 {
		vehicle, err = models.GetVehicle(ctx, vehicleId)
		if err != nil {
			return nil, nil, utils.ValidationErrorf("vehicle not found")
		}
	}
	if err := validateApprovalVehicle(vehicle); err != nil {
		return nil, nil, err
	}

	if vehicleId > 0 {
		redisLock := obtainBestEffortRedisLock(ctx, VehicleLockKey(vehicleId), 30*time.Second)
		defer releaseRedisLock(ctx, redisLock)
	}

	keys := append(participantLockKeys(travel.ParticipantIds()), TravelLockKey(id))
	if vehicleId > 0 {
		keys = append(keys, VehicleLockKey(vehicleId))
	}

	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, keys)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	// re-read under the travel lock: the pre-lock transition check only
	// shapes the error message, this one decides
	fresh, err := models.GetTravelOn(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := ValidateTravelTransition(fresh.Status, models.TravelStatusApproved); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	travel = fresh
	participantIds := travel.ParticipantIds()

	warnings, err := findConflictsOn(tx, ctx, travel.DepartureTime, travel.ReturnTime, participantIds, 0, id,
		[]models.TravelStatus{models.TravelStatusPending, models.TravelStatusApproved})
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if vehicleId > 0 {
		allocations, err := models.ListVehicleAllocations(tx, ctx, vehicleId, id)
		if err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		if vehicleConflicts := ScanAllocationConflicts(travel.DepartureTime, travel.ReturnTime, vehicleId, id, allocations); len(vehicleConflicts) > 0 {
			tx.Rollback()
			return nil, nil, utils.ConflictErrorf("vehicle %d already allocated in this window", vehicleId)
		}

		allocation := models.VehicleAllocation{
			TravelId:       id,
			VehicleId:      vehicleId,
			StartTime:      travel.DepartureTime,
			EndTime:        travel.ReturnTime,
			OdometerBefore: vehicle.CurrentOdometer,
			OdometerAfter:  vehicle.CurrentOdometer,
		}
		if travel.Allocation != nil {
			if err := tx.WithContext(ctx).Model(&models.VehicleAllocation{}).
				Where("travel_id = ?", id).Updates(map[string]interface{}{
				"vehicle_id":      vehicleId,
				"start_time":      travel.DepartureTime,
				"end_time":        travel.ReturnTime,
				"odometer_before": vehicle.CurrentOdometer,
				"odometer_after":  vehicle.CurrentOdometer,
			}).Error; err != nil {
				tx.Rollback()
				return nil, nil, err
			}
		} else {
			if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
				tx.Rollback()
				return nil, nil, err
			}
		}
	}

	if err := ApplyBatch(tx, ctx, travel, batch, actorId); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Model(&models.Travel{}).
		Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.TravelStatusApproved,
		"approved_by": actorId,
		"approved_at": &now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	for _, pid := range participantIds {
		if err := models.PublishNotification(ctx, tx, pid,
			models.NotificationEventTravelApproved,
			models.NotificationReferenceTypeTravel, id, travel); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	approved, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return approved, warnings, nil
}

// RejectTravel is reviewer-only: pending -> cancelled with a reason.
func RejectTravel(ctx context.Context, id int, reason string) (*models.Travel, error) {
	_, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !role.HasReviewerAuthority() {
		return nil, utils.ForbiddenErrorf("reviewer authority required")
	}
	if reason == "" {
		return nil, utils.ValidationErrorf("rejection reason is required")
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}
	if travel.Status != models.TravelStatusPending {
		return nil, utils.ValidationErrorf("only pending travels can be rejected")
	}

	return cancelTravelWithEvent(ctx, id, reason, models.NotificationEventTravelRejected, true)
}

// CancelTravel is available to the driver, requester or a reviewer, at any
// point before completion.
func CancelTravel(ctx context.Context, id int, reason string) (*models.Travel, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}
	isParty := travel.RequesterId == actorId || travel.DriverId == actorId
	if !isParty && !role.HasReviewerAuthority() {
		return nil, utils.ForbiddenErrorf("only the requester, driver or a reviewer may cancel a travel")
	}
	if err := ValidateTravelTransition(travel.Status, models.TravelStatusCancelled); err != nil {
		return nil, err
	}

	return cancelTravelWithEvent(ctx, id, reason, models.NotificationEventTravelCancelled, false)
}

// cancelTravelWithEvent holds the travel lock across its own status re-read
// and the write, so a cancel can never land on top of a concurrent approve
// (or the other way around) without one of them seeing the other's commit.
func cancelTravelWithEvent(ctx context.Context, id int, reason string, event models.NotificationEventKind, pendingOnly bool) (*models.Travel, error) {
	db := config.GetDB()
	tx := db.Begin()

	lockKeys, err := AcquireResourceLocks(tx, []string{TravelLockKey(id)})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	travel, err := models.GetTravelOn(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if pendingOnly && travel.Status != models.TravelStatusPending {
		tx.Rollback()
		return nil, utils.ValidationErrorf("only pending travels can be rejected")
	}
	if err := ValidateTravelTransition(travel.Status, models.TravelStatusCancelled); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&models.Travel{}).
		Where("id = ?", travel.ID).Updates(map[string]interface{}{
		"status":        models.TravelStatusCancelled,
		"cancel_reason": reason,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, pid := range travel.ParticipantIds() {
		if err := models.PublishNotification(ctx, tx, pid, event,
			models.NotificationReferenceTypeTravel, travel.ID, travel); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	travel.Status = models.TravelStatusCancelled
	travel.CancelReason = reason
	return travel, nil
}

// StartTravel is driver-only: approved -> in_progress at or after departure.
func StartTravel(ctx context.Context, id int) (*models.Travel, error) {
	actorId, _, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}
	if travel.DriverId != actorId {
		return nil, utils.ForbiddenErrorf("only the driver may start a travel")
	}
	if err := ValidateTravelTransition(travel.Status, models.TravelStatusInProgress); err != nil {
		return nil, err
	}
	if time.Now().Before(travel.DepartureTime) {
		return nil, utils.ValidationErrorf("travel cannot start before its departure time")
	}

	// compare-and-set: the status predicate makes the write fail cleanly if
	// the travel left approved between the check and here
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&models.Travel{}).
		Where("id = ? AND status = ?", id, models.TravelStatusApproved).
		Update("status", models.TravelStatusInProgress)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ValidationErrorf("travel is no longer approved")
	}
	travel.Status = models.TravelStatusInProgress
	return travel, nil
}

// CompleteTravel finalizes the trip: in_progress -> completed, the
// allocation's closing odometer recorded and the vehicle's current odometer
// rolled forward.
func CompleteTravel(ctx context.Context, id int, odometerAfter decimal.Decimal) (*models.Travel, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}
	if travel.DriverId != actorId && !role.HasReviewerAuthority() {
		return nil, utils.ForbiddenErrorf("only the driver or a reviewer may complete a travel")
	}
	if err := ValidateTravelTransition(travel.Status, models.TravelStatusCompleted); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if travel.Allocation != nil {
		if odometerAfter.LessThan(travel.Allocation.OdometerBefore) {
			tx.Rollback()
			return nil, utils.ValidationErrorf("closing odometer cannot be below the opening reading")
		}
		if err := tx.WithContext(ctx).Model(&models.VehicleAllocation{}).
			Where("travel_id = ?", id).
			Update("odometer_after", odometerAfter).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).Model(&models.Vehicle{}).
			Where("id = ?", travel.Allocation.VehicleId).
			Update("current_odometer", odometerAfter).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	res := tx.WithContext(ctx).Model(&models.Travel{}).
		Where("id = ? AND status = ?", id, models.TravelStatusInProgress).
		Update("status", models.TravelStatusCompleted)
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, utils.ValidationErrorf("travel is no longer in progress")
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	travel.Status = models.TravelStatusCompleted
	return travel, nil
}

// SaveReview is the reviewer's ledger adjustment after approval: the payout
// batch is applied, the travel status untouched.
func SaveReview(ctx context.Context, id int, batch *PayoutBatch) (*models.Travel, error) {
	actorId, role, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !role.HasReviewerAuthority() {
		return nil, utils.ForbiddenErrorf("reviewer authority required")
	}

	travel, err := models.GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}
	switch travel.Status {
	case models.TravelStatusApproved, models.TravelStatusInProgress, models.TravelStatusCompleted:
	default:
		return nil, utils.ValidationErrorf("payouts can only be reviewed after approval")
	}
	if batch.IsEmpty() {
		return travel, nil
	}

	db := config.GetDB()
	tx := db.Begin()

	keys := participantLockKeys(batch.ParticipantIds())
	lockKeys, err := AcquireResourceLocks(tx, keys)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseResourceLocks(tx, lockKeys)

	if err := ApplyBatch(tx, ctx, travel, batch, actorId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return travel, nil
}
