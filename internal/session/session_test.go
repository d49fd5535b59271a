package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/buddybuy/internal/auth"
	"github.com/erazemk/buddybuy/internal/db"
	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
)

type fakeAuth struct {
	users      map[string]model.Identity
	signOutErr error
	signOuts   int
}

func (f *fakeAuth) session(email string) (*remote.Session, error) {
	id, ok := f.users[email]
	if !ok {
		return nil, &remote.Error{Status: 401, Message: "invalid credentials"}
	}
	tok, err := auth.GenerateToken("secret", id)
	if err != nil {
		return nil, err
	}
	return &remote.Session{Token: tok, User: id}, nil
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string) (*remote.Session, error) {
	f.users[email] = model.Identity{ID: "id-" + email, Email: email}
	return f.session(email)
}

func (f *fakeAuth) SignIn(_ context.Context, email, _ string) (*remote.Session, error) {
	return f.session(email)
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.signOuts++
	return f.signOutErr
}

func newTestManager(t *testing.T) (*Manager, *fakeAuth, *localstore.SQLite) {
	t.Helper()
	fa := &fakeAuth{users: map[string]model.Identity{}}
	store := localstore.New(db.NewLocalTestDB(t))
	return NewManager(fa, store), fa, store
}

func TestSignUpNotifiesAndPersists(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(t)

	var seen []*model.Identity
	m.Subscribe(func(id *model.Identity) { seen = append(seen, id) })

	id, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)

	require.Len(t, seen, 1)
	assert.Equal(t, id, *seen[0])
	assert.Equal(t, &id, m.Current())

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, ok, err := store.Get(ctx, localstore.SessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignInSameUserDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)

	calls := 0
	m.Subscribe(func(*model.Identity) { calls++ })

	_, err = m.SignIn(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestSignInFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.SignIn(ctx, "nobody@example.com", "password")
	assert.True(t, errors.Is(err, remote.ErrUnauthorized))
	assert.Nil(t, m.Current())
}

func TestSignOutClearsEvenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	m, fa, store := newTestManager(t)

	_, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)

	var last *model.Identity
	notified := false
	m.Subscribe(func(id *model.Identity) { last, notified = id, true })

	fa.signOutErr = errors.New("offline")
	require.NoError(t, m.SignOut(ctx))

	assert.Equal(t, 1, fa.signOuts)
	assert.True(t, notified)
	assert.Nil(t, last)
	assert.Nil(t, m.Current())

	_, ok, err := store.Get(ctx, localstore.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, m.SignOut(ctx), ErrNotSignedIn)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	m, fa, store := newTestManager(t)

	_, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)

	// A fresh manager over the same store picks the session up.
	restored := NewManager(fa, store)
	id, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, id, restored.Current())
}

func TestRestoreDropsExpiredSession(t *testing.T) {
	ctx := context.Background()
	m, fa, store := newTestManager(t)

	_, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)

	later := NewManager(fa, store)
	later.now = func() time.Time { return time.Now().Add(auth.TokenExpiry + time.Hour) }

	id, err := later.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Nil(t, later.Current())

	_, ok, err := store.Get(ctx, localstore.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreDropsGarbage(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(t)

	require.NoError(t, store.Set(ctx, localstore.SessionKey, []byte(`{"token":"not-a-jwt"}`)))

	id, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)

	_, ok, err := store.Get(ctx, localstore.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	calls := 0
	unsubscribe := m.Subscribe(func(*model.Identity) { calls++ })
	unsubscribe()

	_, err := m.SignUp(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	assert.Zero(t, calls)
}
