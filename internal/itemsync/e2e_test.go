package itemsync_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/buddybuy/internal/api"
	"github.com/erazemk/buddybuy/internal/db"
	"github.com/erazemk/buddybuy/internal/itemsync"
	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
	"github.com/erazemk/buddybuy/internal/session"
)

// device is one client installation talking to a shared server.
type device struct {
	engine  *itemsync.Engine
	session *session.Manager
}

func newDevice(t *testing.T, serverURL string) *device {
	t.Helper()

	store := localstore.New(db.NewLocalTestDB(t))
	client := remote.New(serverURL, nil)
	mgr := session.NewManager(client, store)
	client.Token = mgr.Token

	engine := itemsync.New(itemsync.Options{
		Store:    store,
		Items:    client,
		Uploader: itemsync.NewUploader(client, nil),
	})
	t.Cleanup(engine.Wait)

	d := &device{engine: engine, session: mgr}
	mgr.Subscribe(func(id *model.Identity) {
		engine.OnSessionChange(context.Background(), id)
	})
	return d
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(api.NewRouter(db.NewTestDB(t), "test-secret"))
	t.Cleanup(server.Close)

	phone := newDevice(t, server.URL)
	_, err := phone.session.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	phone.engine.Wait()

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 16, 16))))
	photo := filepath.Join(t.TempDir(), "lamp.png")
	require.NoError(t, os.WriteFile(photo, img.Bytes(), 0o600))

	lamp, task, err := phone.engine.AddItem(ctx, model.ItemDraft{
		Title:    "Lamp",
		Rating:   model.RatingNeutral,
		ImageRef: "file://" + photo,
	})
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))

	chair, task, err := phone.engine.AddItem(ctx, model.ItemDraft{Title: "Chair", Rating: model.RatingBad})
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))

	rating := model.RatingGood
	task, err = phone.engine.UpdateItem(ctx, chair.ID, model.ItemPatch{Rating: &rating})
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))

	items := phone.engine.Snapshot().Items
	require.Len(t, items, 2)
	for _, item := range items {
		assert.True(t, item.Synced(), item.Title)
		assert.False(t, item.IsLocal(), item.Title)
	}
	uploaded := byTitle(items)["Lamp"].ImageRef
	require.True(t, strings.HasPrefix(uploaded, server.URL+"/storage/item-images/"), uploaded)

	resp, err := http.Get(uploaded)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A second device signing in to the same account sees the same items.
	tablet := newDevice(t, server.URL)
	_, err = tablet.session.SignIn(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	tablet.engine.Wait()

	seen := byTitle(tablet.engine.Snapshot().Items)
	require.Len(t, seen, 2)
	assert.Equal(t, model.RatingGood, seen["Chair"].Rating)
	assert.Equal(t, uploaded, seen["Lamp"].ImageRef)
	assert.True(t, seen["Lamp"].CreatedAt.Equal(lamp.CreatedAt))

	// Deleting on one device removes the item from the other on its next sync.
	task, err = tablet.engine.DeleteItem(ctx, seen["Chair"].ID)
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))

	require.NoError(t, phone.engine.SyncWithRemote(ctx))
	items = phone.engine.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "Lamp", items[0].Title)

	// Signing out clears the engine.
	require.NoError(t, phone.session.SignOut(ctx))
	assert.Empty(t, phone.engine.Snapshot().Items)
	_, _, err = phone.engine.AddItem(ctx, model.ItemDraft{Title: "Desk"})
	assert.ErrorIs(t, err, itemsync.ErrNoSession)
}

func byTitle(items []model.Item) map[string]model.Item {
	out := make(map[string]model.Item, len(items))
	for _, item := range items {
		out[item.Title] = item
	}
	return out
}
