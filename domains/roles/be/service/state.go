package service

import "sync"

// MigrationState tracks whether the opportunistic startup migration has run
// for the lifetime of the process. Injected, never a package global, so tests
// can reset it.
type MigrationState struct {
	mu          sync.Mutex
	startupDone bool
}

func NewMigrationState() *MigrationState {
	return &MigrationState{}
}

// TryStartup reports whether the startup migration should run, flipping the
// guard on the first call.
func (s *MigrationState) TryStartup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startupDone {
		return false
	}
	s.startupDone = true
	return true
}

// StartupDone reports whether the startup migration already ran.
func (s *MigrationState) StartupDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startupDone
}

// Reset clears the guard. Test use only.
func (s *MigrationState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startupDone = false
}
