package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

func ParticipantLockKey(userId int) string {
	return fmt.Sprintf("travel-res:participant:%d", userId)
}

// TravelLockKey serializes state transitions of a single travel: every
// writer that moves a travel between statuses must hold it, so the status
// re-read inside the locked transaction is authoritative.
func TravelLockKey(travelId int) string {
	return fmt.Sprintf("travel-res:travel:%d", travelId)
}

func VehicleLockKey(vehicleId int) string {
	return fmt.Sprintf("travel-res:vehicle:%d", vehicleId)
}

func PayoutLockKey(headId int) string {
	return fmt.Sprintf("payout:%d", headId)
}

// SortLockKeys returns a deduplicated, sorted copy. All callers must acquire
// in this order or two overlapping requests can deadlock against each other.
func SortLockKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AcquireResourceLocks serializes writers per resource across instances using
// MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that will do the posting; keys acquired so far are
// released on failure.
func AcquireResourceLocks(tx *gorm.DB, keys []string) ([]string, error) {
	acquired := make([]string, 0, len(keys))
	for _, key := range SortLockKeys(keys) {
		var ok int
		if err := tx.Raw("SELECT GET_LOCK(?, 30)", key).Scan(&ok).Error; err != nil {
			ReleaseResourceLocks(tx, acquired)
			return nil, err
		}
		if ok != 1 {
			ReleaseResourceLocks(tx, acquired)
			return nil, fmt.Errorf("could not acquire resource lock %s", key)
		}
		acquired = append(acquired, key)
	}
	return acquired, nil
}

// ReleaseResourceLocks releases in reverse acquisition order on the same
// connection that took them.
func ReleaseResourceLocks(tx *gorm.DB, keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		var _ok int
		_ = tx.Raw("SELECT RELEASE_LOCK(?)", keys[i]).Scan(&_ok).Error
	}
}

// obtainBestEffortRedisLock sheds contention early so concurrent approvals
// rarely reach the DB locks at the same time. Correctness never depends on it:
// redis being down or the lock being unobtainable just falls through to
// GET_LOCK serialization.
func obtainBestEffortRedisLock(ctx context.Context, key string, ttl time.Duration) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(ctx, "lk:"+key, ttl, nil)
	if err != nil {
		return nil
	}
	return lock
}

func releaseRedisLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}
