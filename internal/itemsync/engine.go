// Package itemsync keeps a user's item collection in memory, persists every
// change to the device store first and propagates it to the server in the
// background.
//
// An Engine is bound to at most one identity at a time. Mutations are applied
// to memory and the Local Store synchronously; remote propagation runs as a
// Task. Propagation of a single item is serialized through that item's lane,
// which it keeps across graduation from a local id to a server id.
package itemsync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/model"
)

// ItemService is the hosted item table.
type ItemService interface {
	Select(ctx context.Context, ownerID string) ([]model.RemoteItem, error)
	Insert(ctx context.Context, rec model.RemoteItem) (model.RemoteItem, error)
	Update(ctx context.Context, id string, patch model.RemotePatch) error
	Delete(ctx context.Context, id string) error
}

// Options configures an Engine.
type Options struct {
	Store    localstore.Store
	Items    ItemService
	Uploader *Uploader // nil disables image uploads
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// State is a published snapshot of the engine.
type State struct {
	OwnerID string
	Items   []model.Item
	Loading bool
	Syncing bool
}

// Stats summarizes the collection.
type Stats struct {
	Total   int
	Pending int
}

// lane serializes propagation of one item. It is shared by the item's local
// id and its server id after graduation.
type lane struct {
	mu sync.Mutex

	// Guarded by Engine.mu.
	id      string
	rev     uint64 // bumped on every local mutation
	touched uint64 // engine sequence of the last mutation or confirmation
}

// Engine is the sync engine for one device.
type Engine struct {
	store    localstore.Store
	items    ItemService
	uploader *Uploader
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu         sync.Mutex
	owner      *model.Identity
	epoch      uint64
	ctx        context.Context
	cancel     context.CancelFunc
	collection []model.Item
	tombstones []string
	loading    bool
	syncing    bool
	lanes      map[string]*lane
	seq        uint64
	subs       map[int]chan State
	nextSub    int

	syncMu sync.Mutex
	tasks  sync.WaitGroup
}

// New creates an engine with no identity bound.
func New(opts Options) *Engine {
	e := &Engine{
		store:    opts.Store,
		items:    opts.Items,
		uploader: opts.Uploader,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		lanes:    make(map[string]*lane),
		subs:     make(map[int]chan State),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.New().String() }
	}
	return e
}

// Initialize binds identity, loads its persisted collection and starts a
// full reconciliation in the background. A previously bound identity is torn
// down first.
func (e *Engine) Initialize(ctx context.Context, identity model.Identity) *Task {
	e.mu.Lock()
	if e.owner != nil {
		e.teardownLocked()
	}

	e.epoch++
	e.owner = &identity
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.loading = true
	e.publishLocked()

	e.collection = e.loadItemsLocked(ctx)
	e.tombstones = e.loadTombstonesLocked(ctx)
	for _, item := range e.collection {
		e.laneLocked(item.ID)
	}
	e.loading = false
	e.publishLocked()
	loaded := len(e.collection)
	e.mu.Unlock()

	e.logger.Info("engine initialized", "user", identity.Email, "items", loaded)
	return e.StartSync(ctx)
}

// Teardown unbinds the current identity and clears the in-memory state.
// Background tasks of the old identity are cancelled and their results
// discarded.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == nil {
		return
	}
	e.teardownLocked()
	e.publishLocked()
}

func (e *Engine) teardownLocked() {
	e.logger.Info("engine torn down", "user", e.owner.Email)
	e.cancel()
	e.epoch++
	e.owner = nil
	e.collection = nil
	e.tombstones = nil
	e.loading = false
	e.syncing = false
	e.lanes = make(map[string]*lane)
}

// OnSessionChange re-scopes the engine to identity. A nil identity tears the
// engine down; the identity already bound is a no-op.
func (e *Engine) OnSessionChange(ctx context.Context, identity *model.Identity) *Task {
	if identity == nil {
		e.Teardown()
		return completedTask(nil)
	}

	e.mu.Lock()
	same := e.owner != nil && e.owner.ID == identity.ID
	e.mu.Unlock()
	if same {
		return completedTask(nil)
	}
	return e.Initialize(ctx, *identity)
}

// AddItem appends a new pending item with a local id and starts propagating
// it. The returned item carries the local id; a failed Local Store write is
// logged but does not fail the call.
func (e *Engine) AddItem(ctx context.Context, draft model.ItemDraft) (model.Item, *Task, error) {
	e.mu.Lock()
	if e.owner == nil {
		e.mu.Unlock()
		return model.Item{}, nil, ErrNoSession
	}

	item := model.Item{
		ID:          model.LocalIDPrefix + e.newID(),
		Title:       draft.Title,
		Description: draft.Description,
		Rating:      draft.Rating,
		ImageRef:    draft.ImageRef,
		OwnerID:     e.owner.ID,
		CreatedAt:   e.now().UTC().Truncate(time.Millisecond),
		SyncStatus:  model.SyncPending,
	}
	e.collection = append(e.collection, item)
	l := e.laneLocked(item.ID)
	e.touchLocked(l, true)
	_ = e.persistItemsLocked(ctx)
	e.publishLocked()
	epoch := e.epoch
	e.mu.Unlock()

	return item, e.spawn(epoch, func(ctx context.Context) error {
		return e.syncItem(ctx, l, epoch)
	}), nil
}

// UpdateItem merges patch into the item, marks it pending and starts
// propagating it. id may be the item's local id even after it graduated. The
// error reports only the local step; when it wraps ErrLocalPersistence the
// in-memory change was still applied and the task is still started.
func (e *Engine) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) (*Task, error) {
	e.mu.Lock()
	if e.owner == nil {
		e.mu.Unlock()
		return nil, ErrNoSession
	}

	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := patch.Apply(e.collection[idx])
	updated.SyncStatus = model.SyncPending
	e.collection[idx] = updated
	l := e.laneLocked(updated.ID)
	e.touchLocked(l, true)
	err := e.persistItemsLocked(ctx)
	e.publishLocked()
	epoch := e.epoch
	e.mu.Unlock()

	return e.spawn(epoch, func(ctx context.Context) error {
		return e.syncItem(ctx, l, epoch)
	}), err
}

// DeleteItem removes the item from memory and the Local Store immediately.
// Items with a server id are tombstoned and deleted remotely by the returned
// task. A tombstone outlives a failed remote delete and is retried on the
// next full sync; until then the record is hidden from reconciliation.
// Deleting an id that is not in the collection is a no-op.
func (e *Engine) DeleteItem(ctx context.Context, id string) (*Task, error) {
	e.mu.Lock()
	if e.owner == nil {
		e.mu.Unlock()
		return nil, ErrNoSession
	}

	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return completedTask(nil), nil
	}

	item := e.collection[idx]
	e.collection = slices.Delete(e.collection, idx, idx+1)
	l := e.laneLocked(item.ID)
	e.touchLocked(l, true)
	err := e.persistItemsLocked(ctx)
	if !item.IsLocal() {
		e.addTombstoneLocked(ctx, item.ID)
	}
	e.publishLocked()
	epoch := e.epoch
	e.mu.Unlock()

	if item.IsLocal() {
		return completedTask(nil), err
	}
	return e.spawn(epoch, func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		return e.deleteRemote(ctx, item.ID, epoch)
	}), err
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Subscribe returns a channel that receives the state after every change and
// a function that closes it. Slow readers only see the latest state.
func (e *Engine) Subscribe() (<-chan State, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan State, 1)
	ch <- e.stateLocked()
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

// Item returns the item with the given id. Local ids of graduated items
// resolve to the graduated item.
func (e *Engine) Item(id string) (model.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return model.Item{}, false
	}
	return e.collection[idx], true
}

// Search returns the items whose title or description contains query,
// ignoring case. An empty query matches everything.
func (e *Engine) Search(query string) []model.Item {
	query = strings.ToLower(strings.TrimSpace(query))

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.Item
	for _, item := range e.collection {
		if query == "" ||
			strings.Contains(strings.ToLower(item.Title), query) ||
			strings.Contains(strings.ToLower(item.Description), query) {
			out = append(out, item)
		}
	}
	return out
}

// Stats counts the items in the collection.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{Total: len(e.collection)}
	for _, item := range e.collection {
		if !item.Synced() {
			s.Pending++
		}
	}
	return s
}

// Wait blocks until every task started so far has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// spawn runs fn in the background with the context of the given epoch.
func (e *Engine) spawn(epoch uint64, fn func(ctx context.Context) error) *Task {
	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return completedTask(nil)
	}
	ctx := e.ctx
	e.tasks.Add(1)
	e.mu.Unlock()

	t := newTask()
	go func() {
		defer e.tasks.Done()
		t.finish(fn(ctx))
	}()
	return t
}

// indexLocked finds id in the collection, following graduation through the
// item's lane.
func (e *Engine) indexLocked(id string) int {
	if l, ok := e.lanes[id]; ok {
		id = l.id
	}
	return slices.IndexFunc(e.collection, func(item model.Item) bool {
		return item.ID == id
	})
}

func (e *Engine) laneLocked(id string) *lane {
	l, ok := e.lanes[id]
	if !ok {
		l = &lane{id: id}
		e.lanes[id] = l
	}
	return l
}

// touchLocked records a change of the lane's item. Local mutations also bump
// the revision so in-flight propagation does not confirm stale values.
func (e *Engine) touchLocked(l *lane, mutation bool) {
	e.seq++
	l.touched = e.seq
	if mutation {
		l.rev++
	}
}

func (e *Engine) stateLocked() State {
	s := State{
		Items:   slices.Clone(e.collection),
		Loading: e.loading,
		Syncing: e.syncing,
	}
	if e.owner != nil {
		s.OwnerID = e.owner.ID
	}
	if s.Items == nil {
		s.Items = []model.Item{}
	}
	return s
}

func (e *Engine) publishLocked() {
	s := e.stateLocked()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (e *Engine) loadItemsLocked(ctx context.Context) []model.Item {
	var items []model.Item
	if _, err := localstore.GetJSON(ctx, e.store, localstore.ItemsKey(e.owner.ID), &items); err != nil {
		e.logger.Error("loading local items", "user", e.owner.Email, "error", err)
		return nil
	}
	return items
}

func (e *Engine) loadTombstonesLocked(ctx context.Context) []string {
	var ids []string
	if _, err := localstore.GetJSON(ctx, e.store, localstore.TombstonesKey(e.owner.ID), &ids); err != nil {
		e.logger.Error("loading tombstones", "user", e.owner.Email, "error", err)
		return nil
	}
	return ids
}

func (e *Engine) persistItemsLocked(ctx context.Context) error {
	items := e.collection
	if items == nil {
		items = []model.Item{}
	}
	if err := localstore.SetJSON(ctx, e.store, localstore.ItemsKey(e.owner.ID), items); err != nil {
		e.logger.Error("saving local items", "user", e.owner.Email, "error", err)
		return fmt.Errorf("%w: %w", ErrLocalPersistence, err)
	}
	return nil
}

func (e *Engine) persistTombstonesLocked(ctx context.Context) error {
	key := localstore.TombstonesKey(e.owner.ID)
	var err error
	if len(e.tombstones) == 0 {
		err = e.store.Delete(ctx, key)
	} else {
		err = localstore.SetJSON(ctx, e.store, key, e.tombstones)
	}
	if err != nil {
		e.logger.Error("saving tombstones", "user", e.owner.Email, "error", err)
		return fmt.Errorf("%w: %w", ErrLocalPersistence, err)
	}
	return nil
}
