package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/plateful/plateful-client/internal/errs"
	"github.com/plateful/plateful-client/internal/model"
)

// sessionFile is the on-disk record. Field tags are the device storage keys.
type sessionFile struct {
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	StoredAtMs   int64          `json:"token_stored_at,omitempty"`
	Company      *model.Profile `json:"company,omitempty"`
	User         *model.Profile `json:"user,omitempty"`
	LoggedIn     bool           `json:"loggedIn,omitempty"`
	DeviceID     string         `json:"device_id,omitempty"`
}

// FileStore keeps session state in a single JSON file. Writes are atomic
// (temp file + rename) and guarded by a lock file so concurrent processes
// sharing the same file cannot interleave a read-modify-write.
type FileStore struct {
	path string
	log  *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore constructs a FileStore persisting to path. A nil logger
// disables logging.
func NewFileStore(path string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{path: path, log: log, now: time.Now}
}

// DefaultPath returns the session file location under the user config dir,
// honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "plateful", "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "plateful", "session.json")
}

// StoreTokens writes both tokens and a fresh stored-at timestamp as a single
// batched write.
func (s *FileStore) StoreTokens(access, refresh string) error {
	return s.update(func(f *sessionFile) {
		f.AccessToken = access
		f.RefreshToken = refresh
		f.StoredAtMs = s.now().UnixMilli()
	})
}

// AccessToken returns the stored access token, or "" when absent or unreadable.
func (s *FileStore) AccessToken() string { return s.load().AccessToken }

// RefreshToken returns the stored refresh token, or "" when absent or unreadable.
func (s *FileStore) RefreshToken() string { return s.load().RefreshToken }

// Clear removes tokens, timestamp, cached profile and the logged-in flag
// together. On write failure it removes the whole file so that no
// valid-looking tokens remain behind.
func (s *FileStore) Clear() {
	err := s.update(func(f *sessionFile) {
		deviceID := f.DeviceID
		*f = sessionFile{DeviceID: deviceID}
	})
	if err != nil {
		s.log.Warn("session clear write failed, removing file", zap.Error(err))
		if remErr := os.Remove(s.path); remErr != nil && !os.IsNotExist(remErr) {
			s.log.Error("session file removal failed", zap.Error(remErr))
		}
	}
}

// Expired reports whether the stored-at timestamp is missing or older than
// TokenFreshness. This is a local heuristic, not a token validity check.
func (s *FileStore) Expired() bool {
	storedAt := s.load().StoredAtMs
	if storedAt == 0 {
		return true
	}
	return s.now().Sub(time.UnixMilli(storedAt)) > TokenFreshness
}

// StoreProfile caches the profile under the key matching its discriminator,
// clearing the other arm of the union.
func (s *FileStore) StoreProfile(p model.Profile) error {
	return s.update(func(f *sessionFile) {
		f.Company, f.User = nil, nil
		switch p.Type {
		case model.ProfileCompany:
			f.Company = &p
		default:
			f.User = &p
		}
	})
}

// Profile returns the cached profile; ok is false when none is cached.
func (s *FileStore) Profile() (model.Profile, bool) {
	f := s.load()
	switch {
	case f.Company != nil:
		return *f.Company, true
	case f.User != nil:
		return *f.User, true
	}
	return model.Profile{}, false
}

// SetLoggedIn records the logged-in flag.
func (s *FileStore) SetLoggedIn(v bool) error {
	return s.update(func(f *sessionFile) { f.LoggedIn = v })
}

// LoggedIn reports the logged-in flag.
func (s *FileStore) LoggedIn() bool { return s.load().LoggedIn }

// DeviceID returns the stable per-device identifier, generating and
// persisting one on first use.
func (s *FileStore) DeviceID() string {
	if id := s.load().DeviceID; id != "" {
		return id
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	id := uid.String()
	if err := s.update(func(f *sessionFile) {
		if f.DeviceID == "" {
			f.DeviceID = id
		} else {
			id = f.DeviceID
		}
	}); err != nil {
		s.log.Warn("device id persistence failed", zap.Error(err))
	}
	return id
}

// load reads the session file. Absent or corrupt files yield a zero record:
// the caller re-authenticates instead of crashing.
func (s *FileStore) load() sessionFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() sessionFile {
	var f sessionFile
	data, err := os.ReadFile(s.path)
	if err != nil {
		return f
	}
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("session file corrupt, treating as empty", zap.Error(err))
		return sessionFile{}
	}
	return f
}

// update applies fn to the current record and writes it back atomically under
// both the in-process mutex and the cross-process lock file.
func (s *FileStore) update(fn func(*sessionFile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrStorageWrite, err)
	}

	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s", errs.ErrStorageWrite, err)
	}
	defer func() {
		if relErr := lock.release(); relErr != nil {
			s.log.Warn("session lock release failed", zap.Error(relErr))
		}
	}()

	f := s.read()
	fn(&f)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", errs.ErrStorageWrite, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrStorageWrite, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s", errs.ErrStorageWrite, err)
	}
	return nil
}
