package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/gymledger/pkg/observability"
)

// ObjectStore is where snapshots are written (S3 in production)
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Source computes dashboards and knows which owners exist
type Source interface {
	Dashboard(ctx context.Context, ownerID int64, now time.Time) (*Dashboard, error)
	ListOwners(ctx context.Context) ([]int64, error)
}

// Snapshot is the archived form of a dashboard
type Snapshot struct {
	OwnerID     int64      `json:"ownerId"`
	Month       string     `json:"month"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Dashboard   *Dashboard `json:"dashboard"`
}

// Archiver writes one dashboard snapshot per owner per month
type Archiver struct {
	source  Source
	store   ObjectStore
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewArchiver creates an Archiver
func NewArchiver(source Source, store ObjectStore, metrics *observability.Metrics, logger *observability.Logger) *Archiver {
	return &Archiver{
		source:  source,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SnapshotKey is dashboards/<owner>/<YYYY-MM>.json
func SnapshotKey(ownerID int64, month time.Time) string {
	return fmt.Sprintf("dashboards/%d/%s.json", ownerID, month.UTC().Format("2006-01"))
}

// ArchivePreviousMonth archives the month before the current one. It keeps
// going past per-owner failures and returns how many snapshots were written
// along with the first error.
func (a *Archiver) ArchivePreviousMonth(ctx context.Context) (int, error) {
	monthStart, _ := MonthWindow(a.now())
	return a.ArchiveMonth(ctx, monthStart.Add(-time.Millisecond))
}

// ArchiveMonth archives the month containing at for every owner
func (a *Archiver) ArchiveMonth(ctx context.Context, at time.Time) (int, error) {
	owners, err := a.source.ListOwners(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	var firstErr error
	for _, ownerID := range owners {
		err := a.archiveOwner(ctx, ownerID, at)
		a.metrics.RecordArchive(err)
		if err != nil {
			a.logger.WithError(err).WithField("owner_id", ownerID).Error("Dashboard archive failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}

	a.logger.WithFields(map[string]interface{}{
		"month":   at.UTC().Format("2006-01"),
		"owners":  len(owners),
		"written": written,
	}).Info("Dashboard archive complete")
	return written, firstErr
}

func (a *Archiver) archiveOwner(ctx context.Context, ownerID int64, at time.Time) error {
	d, err := a.source.Dashboard(ctx, ownerID, at)
	if err != nil {
		return fmt.Errorf("failed to compute dashboard for owner %d: %w", ownerID, err)
	}

	data, err := json.Marshal(&Snapshot{
		OwnerID:     ownerID,
		Month:       at.UTC().Format("2006-01"),
		GeneratedAt: a.now(),
		Dashboard:   d,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return a.store.PutObject(ctx, SnapshotKey(ownerID, at), data, "application/json")
}
