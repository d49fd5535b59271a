package itemsync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
)

// StartSync runs SyncWithRemote in the background.
func (e *Engine) StartSync(ctx context.Context) *Task {
	e.mu.Lock()
	epoch := e.epoch
	bound := e.owner != nil
	e.mu.Unlock()
	if !bound {
		return completedTask(ErrNoSession)
	}
	return e.spawn(epoch, func(taskCtx context.Context) error {
		return e.SyncWithRemote(taskCtx)
	})
}

// SyncWithRemote reconciles the collection with the server. Pending items are
// propagated one at a time, then the collection is replaced by the server's
// records plus every item that is still pending locally. Concurrent calls
// run one after another.
func (e *Engine) SyncWithRemote(ctx context.Context) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	e.mu.Lock()
	if e.owner == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	owner := *e.owner
	epoch := e.epoch
	e.syncing = true
	e.publishLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.epoch == epoch {
			e.syncing = false
			e.publishLocked()
		}
		e.mu.Unlock()
	}()

	e.retryTombstones(ctx, epoch)

	fetchSeq := e.currentSeq()
	records, err := e.items.Select(ctx, owner.ID)
	if err != nil {
		e.logger.Warn("fetching remote items", "user", owner.Email, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	var failed int
	for _, l := range e.unsynced(epoch) {
		if err := e.syncItem(ctx, l, epoch); err != nil {
			failed++
		}
	}

	refetchSeq := e.currentSeq()
	if again, err := e.items.Select(ctx, owner.ID); err != nil {
		e.logger.Warn("refetching remote items", "user", owner.Email, "error", err)
	} else {
		records, fetchSeq = again, refetchSeq
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}

	e.collection = e.mergeLocked(records, fetchSeq)
	for _, item := range e.collection {
		e.laneLocked(item.ID)
	}
	err = e.persistItemsLocked(ctx)
	e.publishLocked()

	e.logger.Info("sync finished", "user", owner.Email, "items", len(e.collection), "remote", len(records), "failed", failed)
	return err
}

// unsynced returns the lanes to propagate: local-id items first, in
// collection order, then graduated items with unconfirmed edits.
func (e *Engine) unsynced(epoch uint64) []*lane {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}

	var local, graduated []*lane
	for _, item := range e.collection {
		if item.Synced() {
			continue
		}
		if item.IsLocal() {
			local = append(local, e.laneLocked(item.ID))
		} else {
			graduated = append(graduated, e.laneLocked(item.ID))
		}
	}
	return append(local, graduated...)
}

// mergeLocked builds the authoritative collection from the fetched records.
// Tombstoned records are dropped. Items changed locally after the fetch and
// items still pending keep their in-memory version. A record that has a lane
// but no item in memory was deleted on this device and is dropped, even when
// its remote delete already completed and cleared the tombstone.
func (e *Engine) mergeLocked(records []model.RemoteItem, fetchSeq uint64) []model.Item {
	memory := make(map[string]model.Item, len(e.collection))
	for _, item := range e.collection {
		memory[item.ID] = item
	}
	newer := func(id string) bool {
		l, ok := e.lanes[id]
		return ok && l.touched > fetchSeq
	}

	out := make([]model.Item, 0, len(records)+len(e.collection))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if slices.Contains(e.tombstones, r.ID) || seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		local, ok := memory[r.ID]
		_, known := e.lanes[r.ID]
		switch {
		case ok && (!local.Synced() || newer(r.ID)):
			out = append(out, local)
		case !ok && known:
			// Deleted locally.
		default:
			out = append(out, model.FromRemote(r))
		}
	}

	for _, item := range e.collection {
		if seen[item.ID] {
			continue
		}
		if !item.Synced() || newer(item.ID) {
			out = append(out, item)
		}
	}
	return out
}

// retryTombstones re-issues remote deletes that failed earlier.
func (e *Engine) retryTombstones(ctx context.Context, epoch uint64) {
	e.mu.Lock()
	if e.epoch != epoch || len(e.tombstones) == 0 {
		e.mu.Unlock()
		return
	}
	pending := slices.Clone(e.tombstones)
	e.mu.Unlock()

	var done []string
	for _, id := range pending {
		err := e.items.Delete(ctx, id)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			e.logger.Warn("retrying remote delete", "id", id, "error", err)
			continue
		}
		done = append(done, id)
	}
	if len(done) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	e.clearTombstonesLocked(ctx, done)
	e.logger.Info("remote deletes retried", "deleted", len(done), "remaining", len(e.tombstones))
}

func (e *Engine) currentSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}
