package session

import (
	"strings"
	"sync"
)

// Snapshot is the persisted session: the three fields that must survive a
// restart. ExpiresAtMillis is kept as a decimal string of epoch
// milliseconds, matching the wire format the fields were originally stored
// under.
type Snapshot struct {
	IDToken         string
	AccessToken     string
	ExpiresAtMillis string
}

// Store persists session snapshots between runs. Load returns nil when no
// usable session is stored; Clear removes all fields atomically.
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	Clear() error
}

// MemoryStore keeps the snapshot in process memory. Used in tests and for
// ephemeral sessions.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	copied := *s.snap
	return &copied, nil
}

func (s *MemoryStore) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snap = &copied
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

// Persisted field names, matching the cookie names the session was
// originally stored under.
const (
	fieldIDToken     = "idToken"
	fieldAccessToken = "accessToken"
	fieldExpires     = "exp"
)

// ParseCookieHeader recovers a snapshot from a raw Cookie header, for
// bootstrapping a session on the server-rendered path where only the
// header string is available. Returns nil when no identity token is
// present.
func ParseCookieHeader(header string) *Snapshot {
	if header == "" {
		return nil
	}

	snap := &Snapshot{}
	for _, part := range strings.Split(header, "; ") {
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch name {
		case fieldIDToken:
			snap.IDToken = value
		case fieldAccessToken:
			snap.AccessToken = value
		case fieldExpires:
			snap.ExpiresAtMillis = value
		}
	}

	if snap.IDToken == "" {
		return nil
	}
	return snap
}
