package supervisor

import (
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/appvisor/internal/logring"
)

// record is the supervisor-owned transient state for one currently (or
// recently) managed process. It is rebuilt from scratch on every start;
// nothing survives a supervisor restart, so "running" is never trusted
// from a prior session.
type record struct {
	pid           int
	startedAt     time.Time
	state         State
	ring          *logring.Ring
	cmd           *exec.Cmd
	stopRequested bool
	exitErr       error
	waitDone      chan struct{} // closed by the exit watcher when cmd.Wait returns
}

func (r *record) exited() bool {
	select {
	case <-r.waitDone:
		return true
	default:
		return false
	}
}

// entry is one slot in the handle table. opMu serializes all state
// transitions for the id (start, stop, watcher reclassification), while
// mu guards the record pointer and its fields so cross-cutting reads
// never block on an in-flight transition.
type entry struct {
	opMu sync.Mutex
	mu   sync.Mutex
	rec  *record
}

// snapshot returns the current record pointer plus copies of the fields a
// reader needs, without touching opMu.
func (e *entry) snapshot() (rec *record, state State, pid int, startedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, StateStopped, 0, time.Time{}
	}
	return e.rec, e.rec.state, e.rec.pid, e.rec.startedAt
}

func (e *entry) setState(s State) {
	e.mu.Lock()
	if e.rec != nil {
		e.rec.state = s
	}
	e.mu.Unlock()
}

func (e *entry) clear() {
	e.mu.Lock()
	e.rec = nil
	e.mu.Unlock()
}
