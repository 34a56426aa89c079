// Package projectlock provides the per-project write lock held by apply,
// reimport and reclassify.
//
// The lock has two layers. Goroutines in one process queue on an in-process
// slot per project; the holder of the slot then takes an exclusive file lock
// under <dir>/locks so separate plotsync processes sharing a database also
// serialize.
package projectlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/plotsync/plotsync/internal/debug"
)

const (
	// DefaultTimeout bounds how long Acquire waits.
	DefaultTimeout = 30 * time.Second

	// pollInterval is how often the file lock is retried.
	pollInterval = 50 * time.Millisecond

	lockDirName = "locks"
)

// ErrTimeout is returned when the lock is still held by someone else after
// the timeout.
var ErrTimeout = errors.New("timed out waiting for project lock")

// Manager hands out project locks.
type Manager struct {
	dir     string
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// New returns a manager keeping lock files under dir/locks. An empty dir
// gives in-process locking only. A zero timeout means DefaultTimeout; a
// negative one means try once.
func New(dir string, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Manager{dir: dir, timeout: timeout, slots: make(map[string]chan struct{})}
}

func (m *Manager) slot(projectID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[projectID]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[projectID] = s
	}
	return s
}

// Path returns the lock file for projectID, or "" without a lock dir.
func (m *Manager) Path(projectID string) string {
	if m.dir == "" {
		return ""
	}
	return filepath.Join(m.dir, lockDirName, sanitize(projectID)+".lock")
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}

// Acquire blocks until the lock for projectID is held, ctx is done, or the
// timeout passes. The returned release func is safe to call more than once.
func (m *Manager) Acquire(ctx context.Context, projectID string) (func(), error) {
	start := time.Now()
	waitCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	s := m.slot(projectID)
	select {
	case s <- struct{}{}:
	default:
		if m.timeout < 0 {
			return nil, fmt.Errorf("%w %s", ErrTimeout, projectID)
		}
		select {
		case s <- struct{}{}:
		case <-waitCtx.Done():
			return nil, m.waitErr(ctx, projectID, start)
		}
	}

	fl, err := m.lockFile(ctx, waitCtx, projectID, start)
	if err != nil {
		<-s
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if fl != nil {
				debug.Logf("releasing project lock: %s", fl.Path())
				_ = fl.Unlock()
			}
			<-s
		})
	}, nil
}

func (m *Manager) lockFile(ctx, waitCtx context.Context, projectID string, start time.Time) (*flock.Flock, error) {
	path := m.Path(projectID)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if locked {
			debug.Logf("acquired project lock after %v: %s", time.Since(start), path)
			return fl, nil
		}
		if m.timeout < 0 {
			return nil, fmt.Errorf("%w %s", ErrTimeout, projectID)
		}
		select {
		case <-waitCtx.Done():
			return nil, m.waitErr(ctx, projectID, start)
		case <-time.After(pollInterval):
		}
	}
}

func (m *Manager) waitErr(ctx context.Context, projectID string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w %s after %v (another apply or reimport is running)", ErrTimeout, projectID, time.Since(start).Round(time.Millisecond))
}

// With runs fn while holding the lock for projectID.
func (m *Manager) With(ctx context.Context, projectID string, fn func() error) error {
	release, err := m.Acquire(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
