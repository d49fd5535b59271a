package itemsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erazemk/buddybuy/internal/db"
	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
)

var errOffline = errors.New("network is unreachable")

// fakeService is an in-memory item table with failure injection.
type fakeService struct {
	mu      sync.Mutex
	records map[string]model.RemoteItem
	nextID  int

	failSelect bool
	failInsert bool
	failUpdate bool
	failDelete bool

	// When set, Insert signals entered and blocks until release is closed.
	entered chan struct{}
	release chan struct{}

	// afterSelect runs once a Select has read its rows, with the call number
	// starting at 1. beforeDelete runs before a Delete touches the records.
	afterSelect  func(call int)
	beforeDelete func(id string)
	selects      int

	inserts, updates, deletes int
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[string]model.RemoteItem)}
}

func (f *fakeService) Select(_ context.Context, ownerID string) ([]model.RemoteItem, error) {
	out, hook, call, err := f.selectRows(ownerID)
	if hook != nil {
		hook(call)
	}
	return out, err
}

func (f *fakeService) selectRows(ownerID string) ([]model.RemoteItem, func(int), int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects++
	if f.failSelect {
		return nil, f.afterSelect, f.selects, errOffline
	}

	var out []model.RemoteItem
	for _, r := range f.records {
		if r.UserID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, f.afterSelect, f.selects, nil
}

func (f *fakeService) Insert(_ context.Context, rec model.RemoteItem) (model.RemoteItem, error) {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return model.RemoteItem{}, errOffline
	}
	if rec.ID != "" {
		return model.RemoteItem{}, errors.New("insert with id")
	}
	f.inserts++
	f.nextID++
	rec.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeService) Update(_ context.Context, id string, patch model.RemotePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errOffline
	}
	r, ok := f.records[id]
	if !ok {
		return &remote.Error{Status: 404, Message: "item not found"}
	}
	f.updates++
	r.Title, r.Description, r.Rating, r.ImageURL = patch.Title, patch.Description, patch.Rating, patch.ImageURL
	f.records[id] = r
	return nil
}

func (f *fakeService) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	hook := f.beforeDelete
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errOffline
	}
	if _, ok := f.records[id]; !ok {
		return &remote.Error{Status: 404, Message: "item not found"}
	}
	f.deletes++
	delete(f.records, id)
	return nil
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) seed(rec model.RemoteItem) model.RemoteItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.records[rec.ID] = rec
	return rec
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeService) get(id string) (model.RemoteItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

// fakeBlobs records uploads.
type fakeBlobs struct {
	mu      sync.Mutex
	fail    bool
	uploads map[string]string // path -> content type
}

func (b *fakeBlobs) Upload(_ context.Context, path string, _ []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("storage quota exceeded")
	}
	if b.uploads == nil {
		b.uploads = make(map[string]string)
	}
	b.uploads[path] = contentType
	return nil
}

func (b *fakeBlobs) PublicURL(path string) string {
	return "https://blobs.example.com/item-images/" + path
}

// failingStore wraps a Store and fails writes on demand.
type failingStore struct {
	localstore.Store
	mu   sync.Mutex
	fail bool
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *failingStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

var alice = model.Identity{ID: "user-alice", Email: "alice@example.com"}

type harness struct {
	engine  *Engine
	service *fakeService
	blobs   *fakeBlobs
	store   *failingStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	tick := 0

	h := &harness{
		service: newFakeService(),
		blobs:   &fakeBlobs{},
		store:   &failingStore{Store: localstore.New(db.NewLocalTestDB(t))},
	}
	h.engine = New(Options{
		Store:    h.store,
		Items:    h.service,
		Uploader: NewUploader(h.blobs, nil),
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	})
	t.Cleanup(h.engine.Wait)
	return h
}

// start binds alice and waits for the initial sync.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Initialize(context.Background(), alice).Wait(context.Background()))
}

// requireDurable checks that the Local Store holds exactly the in-memory
// collection.
func (h *harness) requireDurable(t *testing.T) {
	t.Helper()

	want, err := json.Marshal(h.engine.Snapshot().Items)
	require.NoError(t, err)

	got, ok, err := h.store.Get(context.Background(), localstore.ItemsKey(alice.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, string(want), string(got))
}

func (h *harness) tombstones(t *testing.T) []string {
	t.Helper()
	var ids []string
	_, err := localstore.GetJSON(context.Background(), h.store, localstore.TombstonesKey(alice.ID), &ids)
	require.NoError(t, err)
	return ids
}

func ids(items []model.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func allSynced(items []model.Item) bool {
	return !slices.ContainsFunc(items, func(item model.Item) bool { return !item.Synced() })
}
