package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/utils"
	"github.com/shopspring/decimal"
)

type Vehicle struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	PlateNumber     string          `gorm:"size:32;not null;uniqueIndex" json:"plate_number"`
	CurrentOdometer decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"current_odometer"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVehicle struct {
	Name            string          `json:"name" binding:"required"`
	PlateNumber     string          `json:"plate_number" binding:"required"`
	CurrentOdometer decimal.Decimal `json:"current_odometer"`
}

func CreateVehicle(ctx context.Context, input *NewVehicle) (*Vehicle, error) {
	if input.CurrentOdometer.IsNegative() {
		return nil, utils.ValidationErrorf("odometer cannot be negative")
	}

	count, err := utils.ResourceCountWhere[Vehicle](ctx, "plate_number = ?", input.PlateNumber)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ValidationErrorf("plate number already registered")
	}

	vehicle := Vehicle{
		Name:            input.Name,
		PlateNumber:     input.PlateNumber,
		CurrentOdometer: input.CurrentOdometer,
		IsActive:        utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&vehicle).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func GetVehicle(ctx context.Context, id int) (*Vehicle, error) {
	return utils.FetchModel[Vehicle](ctx, id)
}

func GetAllVehicles(ctx context.Context) ([]*Vehicle, error) {
	return utils.FetchAllModels[Vehicle](ctx)
}
