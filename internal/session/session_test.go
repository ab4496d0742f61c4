package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-scan/internal/model"
	"smartbin-scan/internal/pending"
	"smartbin-scan/internal/points"
	"smartbin-scan/pkg/apierror"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSession_LoginPersists(t *testing.T) {
	store := openStore(t)
	sess := New(store, nil)

	raw := signedToken(t, "user-1", time.Now().Add(time.Hour))
	require.NoError(t, sess.Login(raw, model.User{ID: "user-1", Name: "Demo", Points: 10}))

	assert.True(t, sess.LoggedIn())
	assert.Equal(t, "user-1", sess.UserID())

	got, ok := store.Get(KeyToken)
	require.True(t, ok)
	assert.Equal(t, raw, got)

	rawUser, ok := store.Get(KeyUser)
	require.True(t, ok)
	assert.Contains(t, rawUser, `"points":10`)
}

func TestSession_LoginRejectsExpiredCredential(t *testing.T) {
	sess := New(openStore(t), nil)

	err := sess.Login(signedToken(t, "u", time.Now().Add(-time.Minute)), model.User{ID: "u"})
	assert.Equal(t, apierror.KindAuthExpired, apierror.KindOf(err))
	assert.False(t, sess.LoggedIn())
}

func TestRestore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		store, err := OpenStore(dir)
		require.NoError(t, err)

		sess := New(store, nil)
		require.NoError(t, sess.Login(
			signedToken(t, "user-1", time.Now().Add(time.Hour)),
			model.User{ID: "user-1", Name: "Demo", Points: 25},
		))

		// Fresh process: reopen the store and restore.
		reopened, err := OpenStore(dir)
		require.NoError(t, err)

		restored := Restore(reopened, nil)
		assert.True(t, restored.LoggedIn())

		user, ok := restored.User()
		require.True(t, ok)
		assert.Equal(t, 25, user.Points)
	})

	t.Run("expired credential clears the keys", func(t *testing.T) {
		store := openStore(t)
		require.NoError(t, store.Set(KeyToken, signedToken(t, "u", time.Now().Add(-time.Hour))))
		require.NoError(t, store.Set(KeyUser, `{"id":"u"}`))

		sess := Restore(store, nil)
		assert.False(t, sess.LoggedIn())

		_, hasToken := store.Get(KeyToken)
		assert.False(t, hasToken)
		_, hasUser := store.Get(KeyUser)
		assert.False(t, hasUser)
	})

	t.Run("malformed credential clears the keys", func(t *testing.T) {
		store := openStore(t)
		require.NoError(t, store.Set(KeyToken, "garbage"))

		sess := Restore(store, nil)
		assert.False(t, sess.LoggedIn())

		_, hasToken := store.Get(KeyToken)
		assert.False(t, hasToken)
	})
}

type fakeCamera struct{ stopped bool }

func (f *fakeCamera) Stop() { f.stopped = true }

type fakePush struct{ closed bool }

func (f *fakePush) Close() error {
	f.closed = true
	return nil
}

func TestSession_Logout(t *testing.T) {
	store := openStore(t)
	cell := pending.NewCell(store, 100, time.Second)
	sess := New(store, cell)

	require.NoError(t, sess.Login(
		signedToken(t, "user-1", time.Now().Add(time.Hour)),
		model.User{ID: "user-1", Points: 5},
	))
	require.NoError(t, cell.Begin())

	cam := &fakeCamera{}
	push := &fakePush{}
	sess.AttachCamera(cam)
	sess.AttachPush(push)

	sess.Logout()

	assert.False(t, sess.LoggedIn())
	assert.True(t, cam.stopped)
	assert.True(t, push.closed)

	_, hasToken := store.Get(KeyToken)
	assert.False(t, hasToken)
	_, hasUser := store.Get(KeyUser)
	assert.False(t, hasUser)
	processing, _ := store.Get(pending.KeyScanProcessing)
	assert.Equal(t, "0", processing)
	_, hasLast := store.Get(pending.KeyLastScan)
	assert.False(t, hasLast)

	status, _ := cell.Snapshot()
	assert.Equal(t, pending.StatusNone, status)
}

func TestSession_CredentialExpiryMidSession(t *testing.T) {
	store := openStore(t)
	sess := New(store, nil)

	require.NoError(t, sess.Login(
		signedToken(t, "user-1", time.Now().Add(time.Minute)),
		model.User{ID: "user-1"},
	))

	// Advance the session clock past exp.
	sess.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := sess.Credential()
	assert.Equal(t, apierror.KindAuthExpired, apierror.KindOf(err))

	// The expired session is torn down, not left half-alive.
	_, hasToken := store.Get(KeyToken)
	assert.False(t, hasToken)
}

func TestSession_ApplyPoints(t *testing.T) {
	store := openStore(t)
	sess := New(store, nil)
	require.NoError(t, sess.Login(
		signedToken(t, "user-1", time.Now().Add(time.Hour)),
		model.User{ID: "user-1", Points: 40},
	))

	total := 45
	merged, changed := sess.ApplyPoints(points.Update{Total: &total})
	assert.True(t, changed)
	assert.Equal(t, 45, merged)

	// Re-applying the same total is a no-op.
	merged, changed = sess.ApplyPoints(points.Update{Total: &total})
	assert.False(t, changed)
	assert.Equal(t, 45, merged)

	// The merged total lands in the persisted user record.
	rawUser, ok := store.Get(KeyUser)
	require.True(t, ok)
	assert.Contains(t, rawUser, `"points":45`)
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Delete("missing"))

	reopened, err := OpenStore(dir)
	require.NoError(t, err)

	v, ok := reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
