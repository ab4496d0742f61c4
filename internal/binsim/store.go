// Package binsim is an in-process stand-in for the SmartBin backend. It
// exists so the scan client can be developed and tested without the real
// service: login, QR validation, scan classification (a fixture, not a
// classifier), points and the push stream are all served from memory.
package binsim

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         string
	Points       int
	ScanCount    int
}

type BinToken struct {
	Token     string
	BinID     string
	ExpiresAt time.Time
}

type Store struct {
	mu          sync.Mutex
	usersByName map[string]*User
	usersByID   map[string]*User
	binTokens   map[string]BinToken
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		usersByName: map[string]*User{},
		usersByID:   map[string]*User{},
		binTokens:   map[string]BinToken{},
		now:         time.Now,
	}
}

// Seed installs the demo user and a couple of bin-session tokens, one of
// them already expired.
func (s *Store) Seed() error {
	if _, err := s.AddUser("demo", "demo123", "user"); err != nil {
		return err
	}

	s.AddBinToken("BIN-001", "bin-jakarta-01", s.now().Add(24*time.Hour))
	s.AddBinToken("BIN-EXPIRED", "bin-jakarta-02", s.now().Add(-time.Hour))
	return nil
}

func (s *Store) AddUser(name string, password string, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.usersByName[name] = u
	s.usersByID[u.ID] = u
	return u, nil
}

func (s *Store) Authenticate(name string, password string) (*User, bool) {
	s.mu.Lock()
	u, ok := s.usersByName[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, false
	}

	return u, true
}

func (s *Store) UserByID(id string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[id]
	return u, ok
}

func (s *Store) AddBinToken(token string, binID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.binTokens[token] = BinToken{Token: token, BinID: binID, ExpiresAt: expiresAt}
}

// ValidateBinToken reports whether a decoded QR payload names a live bin
// session, with a reason when it does not.
func (s *Store) ValidateBinToken(token string) (bool, string) {
	s.mu.Lock()
	bt, ok := s.binTokens[token]
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return false, "unknown bin token"
	}
	if now.After(bt.ExpiresAt) {
		return false, "expired"
	}

	return true, ""
}

// Award credits a scan to the user and returns the new total.
func (s *Store) Award(userID string, pointsAwarded int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return 0, false
	}

	u.Points += pointsAwarded
	u.ScanCount++
	return u.Points, true
}

func (s *Store) Summary(userID string) (total int, scans int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.usersByID[userID]
	if !exists {
		return 0, 0, false
	}

	return u.Points, u.ScanCount, true
}
