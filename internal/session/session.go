// Package session owns the per-login state: the bearer credential, the
// cached user record, the pending-scan cell and the push/camera handles.
// One Session is created at login and destroyed at logout; nothing else in
// the client holds user state.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"smartbin-scan/internal/model"
	"smartbin-scan/internal/pending"
	"smartbin-scan/internal/points"
	"smartbin-scan/internal/token"
	"smartbin-scan/pkg/apierror"
)

// Persisted key names for the credential and cached user.
const (
	KeyToken = "smartbin_token"
	KeyUser  = "smartbin_user"
)

type stopper interface {
	Stop()
}

type closer interface {
	Close() error
}

type Session struct {
	mu         sync.RWMutex
	store      *Store
	credential string
	claims     token.Claims
	user       *model.User
	camera     stopper
	push       closer
	now        func() time.Time

	Pending *pending.Cell
}

func New(store *Store, cell *pending.Cell) *Session {
	return &Session{
		store:   store,
		Pending: cell,
		now:     time.Now,
	}
}

// Restore rebuilds a Session from the persisted keys. An absent, malformed
// or expired credential yields a logged-out session with the keys cleared.
func Restore(store *Store, cell *pending.Cell) *Session {
	s := New(store, cell)

	raw, ok := store.Get(KeyToken)
	if !ok {
		return s
	}

	claims, err := token.Inspect(raw)
	if err != nil || claims.Expired(s.now()) {
		s.clearPersisted()
		return s
	}

	s.credential = raw
	s.claims = claims

	if rawUser, ok := store.Get(KeyUser); ok {
		var u model.User
		if err := json.Unmarshal([]byte(rawUser), &u); err == nil {
			s.user = &u
		}
	}

	return s
}

func (s *Session) Login(rawToken string, user model.User) error {
	claims, err := token.Inspect(rawToken)
	if err != nil {
		return err
	}
	if claims.Expired(s.now()) {
		return apierror.New(apierror.KindAuthExpired, "credential already expired", "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credential = rawToken
	s.claims = claims
	s.user = &user
	s.persistLocked()
	return nil
}

// Logout destroys the session: credential, user and persisted keys are
// cleared and the camera/push handles are released.
func (s *Session) Logout() {
	s.mu.Lock()
	camera := s.camera
	push := s.push
	s.camera = nil
	s.push = nil
	s.credential = ""
	s.claims = token.Claims{}
	s.user = nil
	s.mu.Unlock()

	if camera != nil {
		camera.Stop()
	}
	if push != nil {
		_ = push.Close()
	}

	s.clearPersisted()
	if s.Pending != nil {
		s.Pending.Reset()
	}
}

// Credential returns the bearer token, enforcing the never-use-after-expiry
// invariant: an expired credential clears the session and reports
// auth-expired so the caller can redirect to login.
func (s *Session) Credential() (string, error) {
	s.mu.RLock()
	raw := s.credential
	claims := s.claims
	s.mu.RUnlock()

	if raw == "" {
		return "", model.ErrNoCredential
	}

	if claims.Expired(s.now()) {
		s.Logout()
		return "", apierror.New(apierror.KindAuthExpired, "credential expired", "")
	}

	return raw, nil
}

func (s *Session) LoggedIn() bool {
	_, err := s.Credential()
	return err == nil
}

func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return model.User{}, false
	}

	return *s.user, true
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user != nil && s.user.ID != "" {
		return s.user.ID
	}

	return s.claims.Subject
}

// SetUser replaces the cached record on explicit profile edit.
func (s *Session) SetUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &u
	s.persistLocked()
}

// ApplyPoints runs the monotonic merge against the cached user and reports
// the resulting total and whether it changed.
func (s *Session) ApplyPoints(u points.Update) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return 0, false
	}

	merged := points.Merge(s.user.Points, u)
	if merged == s.user.Points {
		return merged, false
	}

	s.user.Points = merged
	s.persistLocked()
	return merged, true
}

func (s *Session) AttachCamera(c stopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
}

func (s *Session) AttachPush(c closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push = c
}

func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}

	_ = s.store.Set(KeyToken, s.credential)
	if s.user != nil {
		if data, err := json.Marshal(s.user); err == nil {
			_ = s.store.Set(KeyUser, string(data))
		}
	}
}

func (s *Session) clearPersisted() {
	if s.store == nil {
		return
	}

	_ = s.store.Delete(KeyToken)
	_ = s.store.Delete(KeyUser)
}
