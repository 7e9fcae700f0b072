package session

import "sync"

// Store maps reporter identities to their sessions. Sessions are created on
// first use and live until cleared. There is no size bound or expiry.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// GetOrCreate returns the identity's session, creating an empty one if absent.
func (s *Store) GetOrCreate(id Identity) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	sess, ok := s.sessions[key]
	if !ok {
		sess = newSession(id)
		s.sessions[key] = sess
	}
	return sess
}

// Get returns the session without creating one.
func (s *Store) Get(id Identity) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id.Key()]
	return sess, ok
}

// Reset replaces the session with a fresh one. Registration info survives so
// the monitoring summary can still name the reporter.
func (s *Store) Reset(id Identity) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	fresh := newSession(id)
	if old, ok := s.sessions[key]; ok {
		fresh.RegistrationInfo = old.RegistrationInfo
	}
	s.sessions[key] = fresh
	return fresh
}

// Clear removes the session. The next GetOrCreate starts from scratch.
func (s *Store) Clear(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id.Key())
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Lock serializes work on one identity's session and returns the unlock
// function. Locks outlive Clear so a cleared identity stays serialized.
func (s *Store) Lock(id Identity) func() {
	s.mu.Lock()
	key := id.Key()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
