/**
 * Sync Coordinator for the SIRIM capture worker
 *
 * Reconciles the local record store with the remote store:
 * - Push: every unsynced local record is upserted remotely and marked synced
 * - Pull: remote records are merged locally, newest UpdatedAt wins
 * - Save/Update/Delete: local first, remote mirroring is opportunistic
 *
 * The local store is authoritative for the device. A remote failure never
 * fails a local write; the record simply stays unsynced until the next push.
 */

package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/adverant/nexus/sirim-worker/internal/metrics"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
)

// RemoteStore is the shared copy of every owner's records
type RemoteStore interface {
	Upsert(ctx context.Context, rec storage.Record) error
	// Update returns errors.ErrRemoteNotFound when the remote copy is missing
	Update(ctx context.Context, rec storage.Record) error
	Delete(ctx context.Context, ownerID, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]storage.Record, error)
}

// ConnectivityProbe reports whether the remote store is reachable right now
type ConnectivityProbe interface {
	IsConnected(ctx context.Context) bool
}

// ImageStore persists label photos and returns a shareable URL
type ImageStore interface {
	Upload(ctx context.Context, ownerID, recordID, localPath string) (string, error)
	Delete(ctx context.Context, url string) error
}

// CoordinatorConfig holds coordinator dependencies. Remote and Probe may be
// nil for an offline-only deployment; Images may be nil when photos are not
// mirrored.
type CoordinatorConfig struct {
	Store   storage.RecordStore
	Remote  RemoteStore
	Probe   ConnectivityProbe
	Images  ImageStore
	Metrics *metrics.Registry
	Clock   func() time.Time
}

// Coordinator synchronizes local and remote records
type Coordinator struct {
	store   storage.RecordStore
	remote  RemoteStore
	probe   ConnectivityProbe
	images  ImageStore
	metrics *metrics.Registry
	now     func() time.Time
	logger  *logging.Logger
}

// NewCoordinator creates a new sync coordinator
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	clock := cfg.Clock
	if clock == nil {
		// Postgres keeps microseconds; truncating keeps UpdatedAt comparisons
		// stable across a push/pull round trip
		clock = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return &Coordinator{
		store:   cfg.Store,
		remote:  cfg.Remote,
		probe:   cfg.Probe,
		images:  cfg.Images,
		metrics: reg,
		now:     clock,
		logger:  logging.NewLogger("SyncCoordinator"),
	}, nil
}

func (c *Coordinator) connected(ctx context.Context) bool {
	if c.remote == nil || c.probe == nil {
		return false
	}
	return c.probe.IsConnected(ctx)
}

// Push uploads every unsynced local record. Per-record failures are counted
// and do not abort the batch.
func (c *Coordinator) Push(ctx context.Context) Outcome {
	if !c.connected(ctx) {
		return NoConnection()
	}

	pending, err := c.store.ListUnsynced(ctx)
	if err != nil {
		c.logger.Error("Failed to enumerate unsynced records", "error", err)
		return Failed(fmt.Sprintf("failed to list unsynced records: %v", err))
	}

	succeeded, failed := 0, 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			c.logger.Warn("Push cancelled", "synced", succeeded, "failed", failed, "remaining", len(pending)-succeeded-failed)
			return Failed("sync cancelled")
		}
		if err := c.pushOne(ctx, rec); err != nil {
			failed++
			c.metrics.PushFailed.Inc()
			c.logger.Warn("Failed to push record", "record_id", rec.ID, "error", err)
			continue
		}
		succeeded++
		c.metrics.PushSucceeded.Inc()
	}

	c.logger.Info("Push complete", "synced", succeeded, "failed", failed)
	return Complete(succeeded, failed)
}

// pushOne upserts rec remotely and marks the pushed version synced locally
func (c *Coordinator) pushOne(ctx context.Context, rec storage.Record) error {
	remoteCopy := rec
	remoteCopy.ImageRef = c.resolveImage(ctx, rec)
	if err := c.remote.Upsert(ctx, remoteCopy); err != nil {
		return errors.NewRemoteCallError(rec.ID, "upsert", err)
	}
	return c.markSynced(ctx, rec)
}

func (c *Coordinator) markSynced(ctx context.Context, rec storage.Record) error {
	marked, err := c.store.MarkSynced(ctx, rec.ID, rec.UpdatedAt, c.now())
	if err != nil {
		return errors.NewLocalStoreError(rec.ID, "mark synced", err)
	}
	if !marked {
		c.logger.Debug("Record changed during push, left unsynced", "record_id", rec.ID)
	}
	return nil
}

// resolveImage returns the URL the remote copy should carry. Local paths are
// uploaded best-effort; a failed upload leaves the remote image empty.
func (c *Coordinator) resolveImage(ctx context.Context, rec storage.Record) *string {
	if rec.ImageRef == nil || *rec.ImageRef == "" {
		return nil
	}
	ref := *rec.ImageRef
	if isRemoteURL(ref) {
		return &ref
	}
	if c.images == nil {
		return nil
	}
	url, err := c.images.Upload(ctx, rec.OwnerID, rec.ID, ref)
	if err != nil {
		c.logger.Warn("Image upload failed, syncing record without image",
			"record_id", rec.ID, "error", errors.NewImageUploadError(rec.ID, ref, err))
		return nil
	}
	return &url
}

func isRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// Pull merges the owner's remote records into the local store. A remote
// record replaces the local copy only when its UpdatedAt is strictly newer.
// Returns errors.ErrNoConnection without side effects when offline.
func (c *Coordinator) Pull(ctx context.Context, ownerID string) error {
	if !c.connected(ctx) {
		return errors.ErrNoConnection
	}

	remote, err := c.remote.ListByOwner(ctx, ownerID)
	if err != nil {
		return errors.NewRemoteCallError("", "list", err)
	}

	inserted, overwritten := 0, 0
	for _, r := range remote {
		if err := ctx.Err(); err != nil {
			return err
		}
		local, err := c.store.Get(ctx, r.ID)
		var expected *time.Time
		switch {
		case errors.Is(err, errors.ErrRecordNotFound):
		case err != nil:
			return errors.NewLocalStoreError(r.ID, "read", err)
		case !r.UpdatedAt.After(local.UpdatedAt):
			continue
		default:
			version := local.UpdatedAt
			expected = &version
		}

		ts := c.now()
		r.OwnerID = ownerID
		r.SyncState = storage.SyncStateSynced
		r.SyncTimestamp = &ts
		if r.ValidationStatus == "" {
			r.ValidationStatus = storage.ValidationPending
		}
		if verr := r.Validate(); verr != nil {
			c.logger.Warn("Skipping malformed remote record", "record_id", r.ID, "error", verr)
			continue
		}
		// A local write since the read above wins; the next cycle pushes it
		written, werr := c.store.ReplaceIfVersion(ctx, expected, r)
		if werr != nil {
			return errors.NewLocalStoreError(r.ID, "insert", werr)
		}
		if !written {
			c.logger.Debug("Local copy changed during pull, keeping it", "record_id", r.ID)
			continue
		}
		if expected == nil {
			inserted++
			c.metrics.PullInserted.Inc()
		} else {
			overwritten++
			c.metrics.PullOverwrote.Inc()
		}
	}

	c.logger.Info("Pull complete", "owner_id", ownerID, "remote", len(remote), "inserted", inserted, "overwritten", overwritten)
	return nil
}

// SaveRecord persists a new record locally, then mirrors it remotely when
// connected. Only a local failure is returned.
func (c *Coordinator) SaveRecord(ctx context.Context, rec storage.Record) error {
	rec.SyncState = storage.SyncStateUnsynced
	rec.SyncTimestamp = nil
	if err := c.store.Insert(ctx, rec); err != nil {
		return errors.NewLocalStoreError(rec.ID, "save", err)
	}
	if !c.connected(ctx) {
		return nil
	}
	if err := c.pushOne(ctx, rec); err != nil {
		c.logger.Warn("Remote save failed, record stays unsynced", "record_id", rec.ID, "error", err)
		return nil
	}
	c.metrics.RemoteMirrored.Inc()
	return nil
}

// UpdateRecord stamps rec with a fresh UpdatedAt, stores it unsynced and
// mirrors it remotely when connected. Returns the stored record.
func (c *Coordinator) UpdateRecord(ctx context.Context, rec storage.Record) (storage.Record, error) {
	existing, err := c.store.Get(ctx, rec.ID)
	if err != nil {
		return storage.Record{}, errors.NewLocalStoreError(rec.ID, "update", err)
	}

	now := c.now()
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Microsecond)
	}
	rec.CreatedAt = existing.CreatedAt
	if rec.OwnerID == "" {
		rec.OwnerID = existing.OwnerID
	}
	rec.UpdatedAt = now
	rec.SyncState = storage.SyncStateUnsynced
	rec.SyncTimestamp = nil
	if err := c.store.Update(ctx, rec); err != nil {
		return storage.Record{}, errors.NewLocalStoreError(rec.ID, "update", err)
	}

	if !c.connected(ctx) {
		return rec, nil
	}
	remoteCopy := rec
	remoteCopy.ImageRef = c.resolveImage(ctx, rec)
	err = c.remote.Update(ctx, remoteCopy)
	if errors.Is(err, errors.ErrRemoteNotFound) {
		err = c.remote.Upsert(ctx, remoteCopy)
	}
	if err != nil {
		c.logger.Warn("Remote update failed, record stays unsynced", "record_id", rec.ID, "error", err)
		return rec, nil
	}
	if err := c.markSynced(ctx, rec); err != nil {
		c.logger.Warn("Failed to mark updated record synced", "record_id", rec.ID, "error", err)
		return rec, nil
	}
	c.metrics.RemoteMirrored.Inc()
	return rec, nil
}

// DeleteRecord removes rec locally, then remotely when connected together
// with its remote image. Only a local failure is returned.
func (c *Coordinator) DeleteRecord(ctx context.Context, rec storage.Record) error {
	if err := c.store.Delete(ctx, rec.ID); err != nil {
		return errors.NewLocalStoreError(rec.ID, "delete", err)
	}
	if !c.connected(ctx) {
		return nil
	}
	if err := c.remote.Delete(ctx, rec.OwnerID, rec.ID); err != nil {
		c.logger.Warn("Remote delete failed", "record_id", rec.ID, "error", err)
		return nil
	}
	if c.images != nil && rec.ImageRef != nil && isRemoteURL(*rec.ImageRef) {
		if err := c.images.Delete(ctx, *rec.ImageRef); err != nil {
			c.logger.Warn("Remote image delete failed", "record_id", rec.ID, "error", err)
		}
	}
	c.metrics.RemoteMirrored.Inc()
	return nil
}

// RunCycle pulls the owner's records and then pushes local changes
func (c *Coordinator) RunCycle(ctx context.Context, ownerID string) Outcome {
	pullErr := c.Pull(ctx, ownerID)
	if pullErr != nil && !errors.Is(pullErr, errors.ErrNoConnection) {
		c.logger.Warn("Pull failed", "owner_id", ownerID, "error", pullErr)
	}
	push := c.Push(ctx)

	outcome := push
	if push.Kind == KindComplete && pullErr != nil {
		if errors.Is(pullErr, errors.ErrNoConnection) {
			outcome = NoConnection()
		} else {
			outcome = Failed("pull failed: " + pullErr.Error())
		}
	}
	c.metrics.CycleOutcomes.WithLabelValues(outcome.Kind.String()).Inc()
	c.logger.Info("Sync cycle finished", "owner_id", ownerID, "outcome", outcome.String())
	return outcome
}
