package fcstate

import "sync"

// Store is the bulletin board shared by the attitude core, the
// supervisor, the radio watcher, and the safety watchdog. It favors
// small independent locks over one record-wide critical section: the
// design tolerates up to one control-cycle of staleness across
// records, and the Disarmed escape hatch (ForceDisarm) is the only
// cross-record invariant that must be immediately visible.
type Store struct {
	setpointMu sync.RWMutex
	setpoint   CoreSetpoint

	stateMu sync.RWMutex
	state   CoreState

	userMu sync.RWMutex
	user   UserInterface

	configMu sync.RWMutex
	config   Config
}

// New returns a Store starting Disarmed with the given initial config.
func New(cfg Config) *Store {
	s := &Store{config: cfg}
	s.setpoint.Mode = Disarmed
	return s
}

// Setpoint returns a copy of the current setpoint.
func (s *Store) Setpoint() CoreSetpoint {
	s.setpointMu.RLock()
	defer s.setpointMu.RUnlock()
	return s.setpoint
}

// SetSetpoint replaces the entire setpoint. No component calls this;
// tests use it to install a setpoint directly.
func (s *Store) SetSetpoint(sp CoreSetpoint) {
	s.setpointMu.Lock()
	defer s.setpointMu.Unlock()
	s.setpoint = sp
}

// UpdateSetpoint mutates fields in place under lock. The supervisor
// writes the commanded fields through it; the attitude core writes
// the integrated Yaw.
func (s *Store) UpdateSetpoint(fn func(*CoreSetpoint)) {
	s.setpointMu.Lock()
	defer s.setpointMu.Unlock()
	fn(&s.setpoint)
}

// ForceDisarm may be called by the supervisor, the safety watchdog,
// the radio watcher, or the pause-button handler. It is the one field
// of CoreSetpoint that is multi-writer.
func (s *Store) ForceDisarm() {
	s.setpointMu.Lock()
	defer s.setpointMu.Unlock()
	s.setpoint.Mode = Disarmed
}

// State returns a copy of the attitude core's most recent state.
func (s *Store) State() CoreState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// UpdateState lets the attitude core mutate its state in place under lock.
func (s *Store) UpdateState(fn func(*CoreState)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	fn(&s.state)
}

// UserInterface returns a copy of the current user interface.
func (s *Store) UserInterface() UserInterface {
	s.userMu.RLock()
	defer s.userMu.RUnlock()
	return s.user
}

// UpdateUserInterface lets the radio watcher mutate user inputs in place.
func (s *Store) UpdateUserInterface(fn func(*UserInterface)) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	fn(&s.user)
}

// Config returns a copy of the current gains/limits.
func (s *Store) Config() Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// SetConfig replaces the config wholesale, used on reload-on-arm.
func (s *Store) SetConfig(cfg Config) {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config = cfg
}
