package reconcile

import (
	"context"
	"sync"
	"time"

	"otengine/models"
	"otengine/repository"
	"otengine/timeutil"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// runCache holds the lookups of a single run. It is never reused across runs
// so department timing edits are picked up on the next tick.
type runCache struct {
	defaultCheckIn timeutil.Clock

	mu          sync.Mutex
	users       map[uint]*models.User
	departments map[uint]*models.Department
	fallbacks   int

	locks map[time.Time]bool
}

func newRunCache(defaultCheckIn timeutil.Clock) *runCache {
	return &runCache{
		defaultCheckIn: defaultCheckIn,
		users:          make(map[uint]*models.User),
		departments:    make(map[uint]*models.Department),
		locks:          make(map[time.Time]bool),
	}
}

// prefetch loads the distinct users, then their distinct departments, with at
// most limit lookups in flight. Failed lookups are logged and leave a gap that
// checkIn fills with the default timing. Only context cancellation is returned.
func (c *runCache) prefetch(ctx context.Context, repo repository.Repository, userIDs []uint, limit int, log logrus.FieldLogger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			user, err := repo.GetUser(gctx, id)
			if err != nil {
				log.WithError(err).WithField("user_id", id).Warn("user lookup failed; using default check-in")
				return nil
			}
			c.mu.Lock()
			c.users[id] = user
			c.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[uint]bool)
	var deptIDs []uint
	for _, u := range c.users {
		if u.DepartmentID != nil && !seen[*u.DepartmentID] {
			seen[*u.DepartmentID] = true
			deptIDs = append(deptIDs, *u.DepartmentID)
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range deptIDs {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dept, err := repo.GetDepartmentTiming(gctx, id)
			if err != nil {
				log.WithError(err).WithField("department_id", id).Warn("department timing lookup failed; using default check-in")
				return nil
			}
			c.mu.Lock()
			c.departments[id] = dept
			c.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// checkIn resolves a user's check-in clock from the prefetched data.
func (c *runCache) checkIn(userID uint, log logrus.FieldLogger) timeutil.Clock {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.users[userID]
	if !ok || user.DepartmentID == nil {
		if !ok {
			c.fallbacks++
		}
		return c.defaultCheckIn
	}
	dept, ok := c.departments[*user.DepartmentID]
	if !ok {
		c.fallbacks++
		return c.defaultCheckIn
	}
	clock, err := dept.CheckInClock()
	if err != nil {
		log.WithError(err).WithField("department_id", dept.ID).Warn("invalid department check-in time; using default")
		c.fallbacks++
		return c.defaultCheckIn
	}
	return clock
}

// locked memoizes lock checks per calendar month for the run.
func (c *runCache) locked(ctx context.Context, locks LockChecker, date time.Time) bool {
	month := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	if v, ok := c.locks[month]; ok {
		return v
	}
	v := locks.IsLocked(ctx, month)
	c.locks[month] = v
	return v
}
