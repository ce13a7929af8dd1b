package workflow

import (
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/portal_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// locking semantics: sorted per-resource acquisition is deadlock-free and
// serializes writers that share any resource. Full GET_LOCK integration tests
// need a MySQL instance.

func TestSortLockKeys_DedupAndOrder(t *testing.T) {
	keys := []string{
		VehicleLockKey(5),
		ParticipantLockKey(10),
		ParticipantLockKey(2),
		ParticipantLockKey(10),
	}
	sorted := SortLockKeys(keys)
	if len(sorted) != 3 {
		t.Fatalf("expected 3 unique keys, got %d: %v", len(sorted), sorted)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1] >= sorted[i] {
			t.Fatalf("keys not strictly ascending: %v", sorted)
		}
	}
}

// fakeLockTable models connection-scoped advisory locks.
type fakeLockTable struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner map[string]int
}

func newFakeLockTable() *fakeLockTable {
	lt := &fakeLockTable{owner: map[string]int{}}
	lt.cond = sync.NewCond(&lt.mu)
	return lt
}

func (lt *fakeLockTable) acquire(conn int, key string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for {
		if _, held := lt.owner[key]; !held {
			lt.owner[key] = conn
			return
		}
		lt.cond.Wait()
	}
}

func (lt *fakeLockTable) release(conn int, key string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.owner[key] == conn {
		delete(lt.owner, key)
		lt.cond.Broadcast()
	}
}

func TestSortedAcquisition_DeadlockFreeAndSerialized(t *testing.T) {
	// two approvals over reversed key sets would deadlock without sorting;
	// repeated runs give interleaving a chance to bite
	for run := 0; run < 100; run++ {
		lt := newFakeLockTable()

		inCritical := map[string]int{}
		var critMu sync.Mutex
		maxSeen := 0

		approve := func(conn int, rawKeys []string) {
			keys := SortLockKeys(rawKeys)
			for _, k := range keys {
				lt.acquire(conn, k)
			}

			critMu.Lock()
			for _, k := range keys {
				inCritical[k]++
				if inCritical[k] > maxSeen {
					maxSeen = inCritical[k]
				}
			}
			critMu.Unlock()

			critMu.Lock()
			for _, k := range keys {
				inCritical[k]--
			}
			critMu.Unlock()

			for i := len(keys) - 1; i >= 0; i-- {
				lt.release(conn, keys[i])
			}
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(conn int) {
				defer wg.Done()
				if conn%2 == 0 {
					approve(conn, []string{ParticipantLockKey(1), ParticipantLockKey(2), VehicleLockKey(9)})
				} else {
					// reversed declaration order, same resources
					approve(conn, []string{VehicleLockKey(9), ParticipantLockKey(2), ParticipantLockKey(1)})
				}
			}(i)
		}
		wg.Wait()

		if maxSeen > 1 {
			t.Fatalf("run=%d: %d writers inside the critical section for one resource", run, maxSeen)
		}
	}
}

// Every status writer re-reads the travel while holding its lock and lets
// that read drive the transition table. Modeled here the same way: two
// approvals and a cancel race for one pending travel; the payout batch must
// apply at most once and an approval must never land on a cancelled travel.
func TestStatusRecheckUnderLock_OneWriterWins(t *testing.T) {
	for run := 0; run < 200; run++ {
		lt := newFakeLockTable()
		status := models.TravelStatusPending
		batchApplied := 0

		transition := func(conn int, to models.TravelStatus, apply func()) {
			key := TravelLockKey(1)
			lt.acquire(conn, key)
			defer lt.release(conn, key)
			// the locked re-read: `status` here is whatever the previous
			// lock holder committed
			if err := ValidateTravelTransition(status, to); err != nil {
				return
			}
			if apply != nil {
				apply()
			}
			status = to
		}

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			transition(1, models.TravelStatusApproved, func() { batchApplied++ })
		}()
		go func() {
			defer wg.Done()
			transition(2, models.TravelStatusApproved, func() { batchApplied++ })
		}()
		go func() {
			defer wg.Done()
			transition(3, models.TravelStatusCancelled, nil)
		}()
		wg.Wait()

		if batchApplied > 1 {
			t.Fatalf("run=%d: payout batch applied %d times", run, batchApplied)
		}
		// cancel succeeds from pending and from approved, so it always
		// lands; an approval writing over it would leave `approved` here
		if status != models.TravelStatusCancelled {
			t.Fatalf("run=%d: final status %s, want cancelled", run, status)
		}
	}
}
