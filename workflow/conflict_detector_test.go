package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/models"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 8, 0, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"disjoint before", day(1), day(2), day(3), day(4), false},
		{"disjoint after", day(3), day(4), day(1), day(2), false},
		{"contained", day(1), day(10), day(3), day(4), true},
		{"containing", day(3), day(4), day(1), day(10), true},
		{"partial", day(1), day(3), day(2), day(4), true},
		{"identical", day(1), day(2), day(1), day(2), true},
		{"touching endpoints conflict", day(1), day(2), day(2), day(3), true},
		{"touching other side", day(2), day(3), day(1), day(2), true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.s1, tc.e1, tc.s2, tc.e2); got != tc.want {
			t.Fatalf("%s: Overlaps=%v want %v", tc.name, got, tc.want)
		}
		// symmetry
		if got := Overlaps(tc.s2, tc.e2, tc.s1, tc.e1); got != tc.want {
			t.Fatalf("%s: Overlaps not symmetric", tc.name)
		}
	}
}

func travelWith(id, driverId int, passengerIds []int, s, e time.Time) *models.Travel {
	tr := &models.Travel{
		ID:            id,
		DriverId:      driverId,
		Destination:   "depot",
		DepartureTime: s,
		ReturnTime:    e,
	}
	for _, pid := range passengerIds {
		tr.Passengers = append(tr.Passengers, &models.TravelPassenger{TravelId: id, UserId: pid})
	}
	return tr
}

func TestScanTravelConflicts_DriverAndPassenger(t *testing.T) {
	candidates := []*models.Travel{
		travelWith(1, 10, []int{11, 12}, day(1), day(3)),
		travelWith(2, 20, nil, day(5), day(6)),
	}

	conflicts := ScanTravelConflicts(day(2), day(4), []int{10, 12, 99}, 0, candidates)
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts (driver 10, passenger 12), got %d", len(conflicts))
	}
	seen := map[int]bool{}
	for _, c := range conflicts {
		if c.ResourceKind != ConflictResourceParticipant {
			t.Fatalf("unexpected resource kind %s", c.ResourceKind)
		}
		if c.TravelId != 1 {
			t.Fatalf("conflict points at travel %d, want 1", c.TravelId)
		}
		seen[c.ResourceId] = true
	}
	if !seen[10] || !seen[12] {
		t.Fatalf("expected conflicts for users 10 and 12, got %v", seen)
	}
}

func TestScanTravelConflicts_ExcludesEditedTravel(t *testing.T) {
	candidates := []*models.Travel{
		travelWith(7, 10, nil, day(1), day(3)),
	}
	conflicts := ScanTravelConflicts(day(2), day(4), []int{10}, 7, candidates)
	if len(conflicts) != 0 {
		t.Fatalf("edited travel must not conflict with itself, got %d conflicts", len(conflicts))
	}
}

func TestScanTravelConflicts_NoOverlapNoConflict(t *testing.T) {
	candidates := []*models.Travel{
		travelWith(1, 10, nil, day(1), day(2)),
	}
	conflicts := ScanTravelConflicts(day(3), day(4), []int{10}, 0, candidates)
	if len(conflicts) != 0 {
		t.Fatalf("disjoint windows must not conflict, got %d", len(conflicts))
	}
}

func TestScanAllocationConflicts(t *testing.T) {
	allocations := []*models.VehicleAllocation{
		{TravelId: 1, VehicleId: 5, StartTime: day(1), EndTime: day(3)},
		{TravelId: 2, VehicleId: 6, StartTime: day(1), EndTime: day(3)},
		{TravelId: 3, VehicleId: 5, StartTime: day(8), EndTime: day(9)},
	}

	conflicts := ScanAllocationConflicts(day(2), day(4), 5, 0, allocations)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 vehicle conflict, got %d", len(conflicts))
	}
	if conflicts[0].TravelId != 1 || conflicts[0].ResourceKind != ConflictResourceVehicle {
		t.Fatalf("unexpected conflict %+v", conflicts[0])
	}

	// the travel being edited keeps its own allocation
	if got := ScanAllocationConflicts(day(2), day(4), 5, 1, allocations); len(got) != 0 {
		t.Fatalf("excluded travel's allocation must not conflict, got %d", len(got))
	}
}
