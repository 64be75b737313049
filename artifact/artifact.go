package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

type Role string

const (
	Local  Role = "local"
	Remote Role = "remote"
)

// Tracker records artifacts that must be cleaned up later. Implementations must be safe for concurrent use.
type Tracker interface {
	Track(path string)
	TrackRemote(key string)
}

// RemoteDeleter removes remote objects. storage.Client satisfies it.
type RemoteDeleter interface {
	Delete(ctx context.Context, key string) error
}

// CleanupError reports one artifact that could not be removed. It never aborts a sweep.
type CleanupError struct {
	Role Role
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("removing %s artifact %s failed: %s", e.Role, e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Outcome is the result of removing one artifact. Err is nil on success.
type Outcome struct {
	Role Role
	Path string
	Err  error
}

// Manager owns the artifact set of one run.
type Manager struct {
	mu      sync.Mutex
	remote  RemoteDeleter
	local   []string
	remotes []string
	seen    map[Role]map[string]struct{}
}

// NewManager returns an empty manager. remote may be nil, in which case remote keys are tracked but left in place.
func NewManager(remote RemoteDeleter) *Manager {
	return &Manager{
		remote: remote,
		seen:   map[Role]map[string]struct{}{Local: {}, Remote: {}},
	}
}

func (m *Manager) Track(path string) {
	m.add(Local, path)
}

func (m *Manager) TrackRemote(key string) {
	m.add(Remote, key)
}

func (m *Manager) add(role Role, path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[role][path]; ok {
		return
	}
	m.seen[role][path] = struct{}{}
	if role == Local {
		m.local = append(m.local, path)
	} else {
		m.remotes = append(m.remotes, path)
	}
}

// Len returns the number of tracked artifacts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.local) + len(m.remotes)
}

// Tracked returns a copy of the tracked paths for role, in tracking order.
func (m *Manager) Tracked(role Role) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role == Local {
		return append([]string{}, m.local...)
	}
	return append([]string{}, m.remotes...)
}

// DrainAndDelete empties the set and then tries to remove every artifact that was in it.
// Every removal is attempted; failures are returned as CleanupErrors in the outcomes.
// A local file that is already gone counts as removed.
func (m *Manager) DrainAndDelete(ctx context.Context) []Outcome {
	m.mu.Lock()
	local, remotes := m.local, m.remotes
	m.local, m.remotes = nil, nil
	m.seen = map[Role]map[string]struct{}{Local: {}, Remote: {}}
	m.mu.Unlock()

	outcomes := make([]Outcome, 0, len(local)+len(remotes))
	for _, path := range local {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		outcomes = append(outcomes, m.outcome(Local, path, err))
	}

	for _, key := range remotes {
		if m.remote == nil {
			slog.Debug("no remote deleter configured, leaving remote artifact", slog.String("key", key))
			continue
		}
		err := m.remote.Delete(ctx, key)
		outcomes = append(outcomes, m.outcome(Remote, key, err))
	}
	return outcomes
}

func (m *Manager) outcome(role Role, path string, err error) Outcome {
	if err != nil {
		cerr := &CleanupError{Role: role, Path: path, Err: err}
		slog.Warn("cleanup failed", slog.String("role", string(role)), slog.String("path", path), slog.String("error", err.Error()))
		return Outcome{Role: role, Path: path, Err: cerr}
	}
	return Outcome{Role: role, Path: path}
}

// Failed returns only the outcomes that did not succeed.
func Failed(outcomes []Outcome) []Outcome {
	out := []Outcome{}
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
