package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VehicleAllocation binds an approved travel to a vehicle. StartTime/EndTime
// are denormalized copies of the travel window so vehicle overlap checks never
// join back to travels; they are kept in sync whenever the travel is edited.
type VehicleAllocation struct {
	ID             int              `gorm:"primary_key" json:"id"`
	TravelId       int              `gorm:"not null;uniqueIndex" json:"travel_id"`
	VehicleId      int              `gorm:"index;not null" json:"vehicle_id"`
	StartTime      time.Time        `gorm:"not null;index" json:"start_time"`
	EndTime        time.Time        `gorm:"not null;index" json:"end_time"`
	OdometerBefore decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"odometer_before"`
	OdometerAfter  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"odometer_after"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetAllocationByTravel(ctx context.Context, travelId int) (*VehicleAllocation, error) {
	db := config.GetDB()
	var allocation VehicleAllocation
	err := db.WithContext(ctx).Where("travel_id = ?", travelId).First(&allocation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &allocation, nil
}

// ListVehicleAllocations returns allocations whose travel still holds the
// vehicle (approved or underway), for the overlap check at approval time.
func ListVehicleAllocations(tx *gorm.DB, ctx context.Context, vehicleId int, excludeTravelId int) ([]*VehicleAllocation, error) {
	var allocations []*VehicleAllocation
	err := tx.WithContext(ctx).
		Joins("JOIN travels ON travels.id = vehicle_allocations.travel_id").
		Where("vehicle_allocations.vehicle_id = ?", vehicleId).
		Where("travels.status IN ?", []TravelStatus{TravelStatusApproved, TravelStatusInProgress}).
		Where("vehicle_allocations.travel_id <> ?", excludeTravelId).
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}
