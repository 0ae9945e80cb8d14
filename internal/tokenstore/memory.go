package tokenstore

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/plateful/plateful-client/internal/model"
)

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu       sync.RWMutex
	access   string
	refresh  string
	storedAt time.Time
	profile  *model.Profile
	loggedIn bool
	deviceID string

	now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

func (s *MemStore) StoreTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.storedAt = access, refresh, s.now()
	return nil
}

func (s *MemStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *MemStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *MemStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.storedAt = "", "", time.Time{}
	s.profile, s.loggedIn = nil, false
}

func (s *MemStore) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.storedAt.IsZero() {
		return true
	}
	return s.now().Sub(s.storedAt) > TokenFreshness
}

func (s *MemStore) StoreProfile(p model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
	return nil
}

func (s *MemStore) Profile() (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return model.Profile{}, false
	}
	return *s.profile, true
}

func (s *MemStore) SetLoggedIn(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = v
	return nil
}

func (s *MemStore) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// ForceStale backdates the stored-at timestamp past the freshness window, for
// tests exercising proactive refresh.
func (s *MemStore) ForceStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.storedAt.IsZero() {
		s.storedAt = s.storedAt.Add(-(TokenFreshness + time.Minute))
	}
}

func (s *MemStore) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID == "" {
		if uid, err := uuid.NewV4(); err == nil {
			s.deviceID = uid.String()
		}
	}
	return s.deviceID
}
