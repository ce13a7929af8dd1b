package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/models"
	"gorm.io/gorm"
)

type ConflictResourceKind string

const (
	ConflictResourceParticipant ConflictResourceKind = "participant"
	ConflictResourceVehicle     ConflictResourceKind = "vehicle"
)

// Conflict describes one (resource, travel) collision, with enough context
// for the client to render it.
type Conflict struct {
	ResourceKind ConflictResourceKind `json:"resource_kind"`
	ResourceId   int                  `json:"resource_id"`
	TravelId     int                  `json:"travel_id"`
	Destination  string               `json:"destination"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
}

// Overlaps is the single canonical interval predicate: closed intervals,
// touching endpoints conflict.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return !s1.After(e2) && !e1.Before(s2)
}

// ScanTravelConflicts checks participantIds against already-fetched candidate
// travels. A participant collides when they are driver or passenger of a
// candidate whose window overlaps; the travel being edited is excluded.
func ScanTravelConflicts(start, end time.Time, participantIds []int, excludeTravelId int, candidates []*models.Travel) []Conflict {
	want := make(map[int]struct{}, len(participantIds))
	for _, id := range participantIds {
		want[id] = struct{}{}
	}

	var conflicts []Conflict
	for _, t := range candidates {
		if t.ID == excludeTravelId {
			continue
		}
		if !Overlaps(start, end, t.DepartureTime, t.ReturnTime) {
			continue
		}
		for _, pid := range t.ParticipantIds() {
			if _, ok := want[pid]; !ok {
				continue
			}
			conflicts = append(conflicts, Conflict{
				ResourceKind: ConflictResourceParticipant,
				ResourceId:   pid,
				TravelId:     t.ID,
				Destination:  t.Destination,
				StartTime:    t.DepartureTime,
				EndTime:      t.ReturnTime,
			})
		}
	}
	return conflicts
}

// ScanAllocationConflicts checks a vehicle against already-fetched
// allocations using their denormalized windows.
func ScanAllocationConflicts(start, end time.Time, vehicleId int, excludeTravelId int, allocations []*models.VehicleAllocation) []Conflict {
	var conflicts []Conflict
	for _, a := range allocations {
		if a.TravelId == excludeTravelId || a.VehicleId != vehicleId {
			continue
		}
		if !Overlaps(start, end, a.StartTime, a.EndTime) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ResourceKind: ConflictResourceVehicle,
			ResourceId:   vehicleId,
			TravelId:     a.TravelId,
			StartTime:    a.StartTime,
			EndTime:      a.EndTime,
		})
	}
	return conflicts
}

// FindConflicts is the read-only DB front of the detector: participants are
// scanned against pending and approved travels, the vehicle against
// allocations of approved travels only. Advisory by itself; Approve re-runs
// the vehicle check under resource locks before trusting it.
func FindConflicts(ctx context.Context, start, end time.Time, participantIds []int, vehicleId int, excludeTravelId int) ([]Conflict, error) {
	db := config.GetDB()
	return findConflictsOn(db, ctx, start, end, participantIds, vehicleId, excludeTravelId,
		[]models.TravelStatus{models.TravelStatusPending, models.TravelStatusApproved})
}

// findConflictsOn runs on the caller's connection so Approve can reuse it
// inside the locked transaction.
func findConflictsOn(tx *gorm.DB, ctx context.Context, start, end time.Time, participantIds []int, vehicleId int, excludeTravelId int, statuses []models.TravelStatus) ([]Conflict, error) {
	var conflicts []Conflict

	if len(participantIds) > 0 {
		var candidates []*models.Travel
		err := tx.WithContext(ctx).Preload("Passengers").
			Where("status IN ?", statuses).
			Where("id <> ?", excludeTravelId).
			Where("departure_time <= ? AND return_time >= ?", end, start).
			Find(&candidates).Error
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, ScanTravelConflicts(start, end, participantIds, excludeTravelId, candidates)...)
	}

	if vehicleId > 0 {
		allocations, err := models.ListVehicleAllocations(tx, ctx, vehicleId, excludeTravelId)
		if err != nil {
			return nil, err
		}
		vehicleConflicts := ScanAllocationConflicts(start, end, vehicleId, excludeTravelId, allocations)
		// fill destinations for display
		for i := range vehicleConflicts {
			var destination string
			if err := tx.WithContext(ctx).Model(&models.Travel{}).
				Where("id = ?", vehicleConflicts[i].TravelId).
				Select("destination").Scan(&destination).Error; err == nil {
				vehicleConflicts[i].Destination = destination
			}
		}
		conflicts = append(conflicts, vehicleConflicts...)
	}

	return conflicts, nil
}
