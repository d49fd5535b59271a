package itemsync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
)

// syncItem sends the current values of the lane's item to the server. Items
// that are already synced or no longer exist are skipped.
func (e *Engine) syncItem(ctx context.Context, l *lane, epoch uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.mu.Lock()
	if e.epoch != epoch || e.owner == nil {
		e.mu.Unlock()
		return nil
	}
	idx := e.indexLocked(l.id)
	if idx < 0 || e.collection[idx].Synced() {
		e.mu.Unlock()
		return nil
	}
	item := e.collection[idx]
	rev := l.rev
	e.mu.Unlock()

	sent := item
	if e.uploader != nil && model.IsLocalImageRef(item.ImageRef) {
		sent.ImageRef = e.uploader.Resolve(ctx, item.OwnerID, item.ImageRef)
	}

	if item.IsLocal() {
		return e.create(ctx, l, epoch, rev, item, sent)
	}
	return e.update(ctx, l, epoch, rev, item, sent)
}

func (e *Engine) create(ctx context.Context, l *lane, epoch, rev uint64, item, sent model.Item) error {
	created, err := e.items.Insert(ctx, sent.ToRemote())

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil
	}

	if err != nil {
		e.adoptImageLocked(ctx, l, item.ImageRef, sent.ImageRef)
		e.mu.Unlock()
		e.logger.Warn("creating remote item", "id", item.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	idx := e.indexLocked(l.id)
	if idx < 0 {
		// Deleted while the insert was in flight. The lane keeps the server
		// id so a sync that fetched the record does not bring it back.
		l.id = created.ID
		e.lanes[created.ID] = l
		e.addTombstoneLocked(ctx, created.ID)
		e.mu.Unlock()
		e.logger.Info("removing remote item deleted during creation", "id", created.ID)
		return e.deleteRemote(ctx, created.ID, epoch)
	}

	current := &e.collection[idx]
	current.ID = created.ID
	if current.ImageRef == item.ImageRef {
		current.ImageRef = sent.ImageRef
	}
	if l.rev == rev {
		current.SyncStatus = model.SyncSynced
	}
	l.id = created.ID
	e.lanes[created.ID] = l
	e.touchLocked(l, false)
	_ = e.persistItemsLocked(ctx)
	e.publishLocked()
	e.mu.Unlock()

	e.logger.Info("item created remotely", "local_id", item.ID, "id", created.ID)
	return nil
}

func (e *Engine) update(ctx context.Context, l *lane, epoch, rev uint64, item, sent model.Item) error {
	err := e.items.Update(ctx, item.ID, sent.ToPatch())

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}

	if err != nil {
		e.adoptImageLocked(ctx, l, item.ImageRef, sent.ImageRef)
		e.logger.Warn("updating remote item", "id", item.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	idx := e.indexLocked(l.id)
	if idx < 0 {
		return nil
	}
	current := &e.collection[idx]
	if current.ImageRef == item.ImageRef {
		current.ImageRef = sent.ImageRef
	}
	if l.rev == rev {
		current.SyncStatus = model.SyncSynced
	}
	e.touchLocked(l, false)
	_ = e.persistItemsLocked(ctx)
	e.publishLocked()
	return nil
}

// adoptImageLocked keeps an uploaded image URL after a failed propagation so
// the next attempt does not upload the file again. The item stays pending.
func (e *Engine) adoptImageLocked(ctx context.Context, l *lane, from, to string) {
	if from == to {
		return
	}
	idx := e.indexLocked(l.id)
	if idx < 0 || e.collection[idx].ImageRef != from {
		return
	}
	e.collection[idx].ImageRef = to
	_ = e.persistItemsLocked(ctx)
	e.publishLocked()
}

// deleteRemote deletes a server record whose id is already tombstoned. The
// tombstone is cleared once the server confirms the delete.
func (e *Engine) deleteRemote(ctx context.Context, id string, epoch uint64) error {
	err := e.items.Delete(ctx, id)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		e.logger.Warn("deleting remote item", "id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch == epoch {
		e.clearTombstonesLocked(ctx, []string{id})
	}
	return nil
}

func (e *Engine) addTombstoneLocked(ctx context.Context, id string) {
	if slices.Contains(e.tombstones, id) {
		return
	}
	e.tombstones = append(e.tombstones, id)
	_ = e.persistTombstonesLocked(ctx)
}

func (e *Engine) clearTombstonesLocked(ctx context.Context, ids []string) {
	n := len(e.tombstones)
	e.tombstones = slices.DeleteFunc(e.tombstones, func(id string) bool {
		return slices.Contains(ids, id)
	})
	if len(e.tombstones) != n {
		_ = e.persistTombstonesLocked(ctx)
	}
}
