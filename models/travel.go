package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"gorm.io/gorm"
)

type Travel struct {
	ID            int                `gorm:"primary_key" json:"id"`
	RequesterId   int                `gorm:"index;not null" json:"requester_id"`
	DriverId      int                `gorm:"index;not null" json:"driver_id"`
	Destination   string             `gorm:"size:255;not null" json:"destination"`
	Purpose       string             `gorm:"type:text" json:"purpose"`
	DepartureTime time.Time          `gorm:"not null;index" json:"departure_time"`
	ReturnTime    time.Time          `gorm:"not null;index" json:"return_time"`
	NeedsVehicle  *bool              `gorm:"not null;default:false" json:"needs_vehicle"`
	Status        TravelStatus       `gorm:"type:enum('pending','approved','in_progress','completed','cancelled');not null;default:'pending';index" json:"status"`
	ApprovedBy    *int               `json:"approved_by"`
	ApprovedAt    *time.Time         `json:"approved_at"`
	CancelReason  string             `gorm:"size:255" json:"cancel_reason"`
	Passengers    []*TravelPassenger `gorm:"constraint:OnDelete:CASCADE" json:"passengers"`
	Allocation    *VehicleAllocation `gorm:"constraint:OnDelete:CASCADE" json:"allocation"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type TravelPassenger struct {
	ID       int `gorm:"primary_key" json:"id"`
	TravelId int `gorm:"index;not null;uniqueIndex:idx_travel_passenger" json:"travel_id"`
	UserId   int `gorm:"not null;uniqueIndex:idx_travel_passenger" json:"user_id"`
}

type NewTravel struct {
	DriverId      int       `json:"driver_id" binding:"required"`
	PassengerIds  []int     `json:"passenger_ids"`
	Destination   string    `json:"destination" binding:"required"`
	Purpose       string    `json:"purpose"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ReturnTime    time.Time `json:"return_time" binding:"required"`
	NeedsVehicle  *bool     `json:"needs_vehicle"`
}

// ParticipantIds returns driver + passengers, deduplicated.
func (input *NewTravel) ParticipantIds() []int {
	ids := append([]int{input.DriverId}, input.PassengerIds...)
	return utils.UniqueSlice(ids)
}

func (t *Travel) ParticipantIds() []int {
	ids := []int{t.DriverId}
	for _, p := range t.Passengers {
		ids = append(ids, p.UserId)
	}
	return utils.UniqueSlice(ids)
}

// Validate input for both create & update. (id = 0 for create)
func (input *NewTravel) Validate(ctx context.Context, _ int) error {
	if !input.ReturnTime.After(input.DepartureTime) {
		return utils.ValidationErrorf("return time must be after departure time")
	}

	// driver exists
	if err := utils.ValidateResourceId[User](ctx, input.DriverId); err != nil {
		return utils.ValidationErrorf("driver not found")
	}

	// all passengers exist
	if len(input.PassengerIds) > 0 {
		if err := utils.ValidateResourcesId[User](ctx, input.PassengerIds); err != nil {
			return utils.ValidationErrorf("passenger not found")
		}
	}

	return nil
}

func GetTravel(ctx context.Context, id int) (*Travel, error) {
	return utils.FetchModel[Travel](ctx, id, "Passengers", "Allocation")
}

// GetTravelOn reads the travel on the caller's transaction, for re-checks
// that must see the state the locks protect rather than a pre-lock snapshot.
func GetTravelOn(tx *gorm.DB, ctx context.Context, id int) (*Travel, error) {
	var travel Travel
	err := tx.WithContext(ctx).Preload("Passengers").Preload("Allocation").
		First(&travel, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &travel, nil
}

type TravelFilter struct {
	Status        *TravelStatus
	ParticipantId *int
	FromDate      *time.Time
	ToDate        *time.Time
}

func ListTravels(ctx context.Context, filter TravelFilter) ([]*Travel, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Travel{}).
		Preload("Passengers").Preload("Allocation")

	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.ParticipantId != nil {
		dbCtx = dbCtx.Where(
			"driver_id = ? OR id IN (SELECT travel_id FROM travel_passengers WHERE user_id = ?)",
			*filter.ParticipantId, *filter.ParticipantId)
	}
	if filter.FromDate != nil && filter.ToDate != nil {
		dbCtx = dbCtx.Where("departure_time <= ? AND return_time >= ?", *filter.ToDate, *filter.FromDate)
	}

	var travels []*Travel
	if err := dbCtx.Order("departure_time").Find(&travels).Error; err != nil {
		return nil, err
	}
	return travels, nil
}

// DeleteTravel removes a travel with its passenger rows, allocation and
// payout heads/entries. Requester-only while pending; reviewers always.
func DeleteTravel(ctx context.Context, id int) (*Travel, error) {
	travel, err := GetTravel(ctx, id)
	if err != nil {
		return nil, err
	}

	actorId, _ := utils.GetUserIdFromContext(ctx)
	role, _ := utils.GetUserRoleFromContext(ctx)
	if !UserRole(role).HasReviewerAuthority() {
		if travel.RequesterId != actorId {
			return nil, utils.ForbiddenErrorf("only the requester may delete a travel")
		}
		if travel.Status != TravelStatusPending {
			return nil, utils.ValidationErrorf("only pending travels can be deleted")
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	var headIds []int
	if err := tx.WithContext(ctx).Model(&PayoutHead{}).Where("travel_id = ?", id).
		Pluck("id", &headIds).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(headIds) > 0 {
		if err := tx.WithContext(ctx).Where("payout_head_id IN ?", headIds).
			Delete(&PayoutEntry{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		var statementIds []int
		if err := tx.WithContext(ctx).Model(&AccountabilityStatement{}).
			Where("payout_head_id IN ?", headIds).Pluck("id", &statementIds).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if len(statementIds) > 0 {
			if err := tx.WithContext(ctx).Where("statement_id IN ?", statementIds).
				Delete(&StatementItem{}).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			if err := tx.WithContext(ctx).Where("id IN ?", statementIds).
				Delete(&AccountabilityStatement{}).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		if err := tx.WithContext(ctx).Where("id IN ?", headIds).
			Delete(&PayoutHead{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.WithContext(ctx).Where("travel_id = ?", id).
		Delete(&TravelPassenger{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("travel_id = ?", id).
		Delete(&VehicleAllocation{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Travel{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return travel, nil
}
