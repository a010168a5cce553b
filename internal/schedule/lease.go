// Package schedule triggers orchestrator runs on a cron schedule and keeps
// them exclusive across processes with a database lease.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
)

// DefaultLeaseTTL is the duration after which an unrefreshed lease is
// considered stale and can be reclaimed.
const DefaultLeaseTTL = 30 * time.Minute

// ErrLeaseHeld is returned by Acquire when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held")

// Lease is a named single-holder lock stored in the run_leases table.
type Lease struct {
	db     *gorm.DB
	name   string
	holder string
	ttl    time.Duration
	now    func() time.Time
}

// LeaseOption customizes a Lease.
type LeaseOption func(*Lease)

// WithHolder sets the holder identity. The default is host:pid.
func WithHolder(holder string) LeaseOption {
	return func(l *Lease) { l.holder = holder }
}

// WithLeaseClock overrides the lease clock.
func WithLeaseClock(now func() time.Time) LeaseOption {
	return func(l *Lease) { l.now = now }
}

// NewLease returns the lease called name.
func NewLease(db *gorm.DB, name string, ttl time.Duration, opts ...LeaseOption) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	l := &Lease{db: db, name: name, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.holder == "" {
		host, _ := os.Hostname()
		l.holder = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	return l
}

// Holder is this process's identity on the lease.
func (l *Lease) Holder() string { return l.holder }

// Acquire takes the lease. A stale lease (heartbeat older than the TTL)
// is expired first. Re-acquiring a lease already held by this holder
// succeeds.
func (l *Lease) Acquire(ctx context.Context) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		cutoff := now.Add(-l.ttl)

		if err := tx.Model(&models.RunLease{}).
			Where("name = ? AND status = ? AND last_heartbeat < ?", l.name, "active", cutoff).
			Updates(map[string]interface{}{
				"status":      "expired",
				"released_at": now,
			}).Error; err != nil {
			return fmt.Errorf("expire stale lease: %w", err)
		}

		var existing models.RunLease
		result := tx.Where("name = ?", l.name).First(&existing)
		switch {
		case result.Error == nil:
			if existing.Status == "active" && existing.Holder != l.holder {
				return fmt.Errorf("%w by %q since %s", ErrLeaseHeld, existing.Holder, existing.AcquiredAt.Format(time.RFC3339))
			}
			return tx.Model(&existing).Updates(map[string]interface{}{
				"holder":         l.holder,
				"status":         "active",
				"last_heartbeat": now,
				"acquired_at":    now,
				"released_at":    nil,
			}).Error
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			return tx.Create(&models.RunLease{
				Name:          l.name,
				Holder:        l.holder,
				Status:        "active",
				LastHeartbeat: now,
				AcquiredAt:    now,
			}).Error
		default:
			return fmt.Errorf("check lease: %w", result.Error)
		}
	})
	if errors.Is(err, ErrLeaseHeld) {
		return &errs.Error{Kind: errs.KindDomain, Op: "schedule: acquire " + l.name, Err: err}
	}
	if err != nil {
		return errs.Storage("schedule: acquire "+l.name, err)
	}
	return nil
}

// Heartbeat refreshes the lease so it is not reclaimed as stale.
func (l *Lease) Heartbeat(ctx context.Context) error {
	return l.update(ctx, "heartbeat", map[string]interface{}{"last_heartbeat": l.now()})
}

// Release gives up the lease.
func (l *Lease) Release(ctx context.Context) error {
	return l.update(ctx, "release", map[string]interface{}{
		"status":      "released",
		"released_at": l.now(),
	})
}

func (l *Lease) update(ctx context.Context, op string, fields map[string]interface{}) error {
	result := l.db.WithContext(ctx).Model(&models.RunLease{}).
		Where("name = ? AND holder = ? AND status = ?", l.name, l.holder, "active").
		Updates(fields)
	if result.Error != nil {
		return errs.Storage("schedule: "+op+" "+l.name, result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("schedule: "+op+" "+l.name, "lease not held by %s", l.holder)
	}
	return nil
}

// Get returns the current lease row.
func (l *Lease) Get(ctx context.Context) (*models.RunLease, error) {
	var row models.RunLease
	if err := l.db.WithContext(ctx).Where("name = ?", l.name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("schedule: get lease", "lease %s not found", l.name)
		}
		return nil, errs.Storage("schedule: get lease", err)
	}
	return &row, nil
}
