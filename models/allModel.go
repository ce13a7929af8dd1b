package models

import "bitbucket.org/mmdatafocus/portal_backend/config"

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&User{},
		&Vehicle{},
		&Travel{},
		&TravelPassenger{},
		&VehicleAllocation{},
		&PayoutHead{},
		&PayoutEntry{},
		&AccountabilityStatement{},
		&StatementItem{},
		&NotificationRecord{},
	)
}
