package supervisor

import (
	"time"
)

// State is the lifecycle state of one managed application. At most one
// record (or none, implying StateStopped) exists per application id.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

// active reports whether a state excludes a new start.
func (s State) active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Status is the derived view reported to callers. State reflects live
// port-bind truth at query time, not just remembered bookkeeping.
type Status struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Enabled   bool          `json:"enabled"`
	Serving   bool          `json:"serving"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// StartResult is returned by Start and Restart: the resulting status plus
// a tail of the captured startup output.
type StartResult struct {
	Status  Status   `json:"status"`
	LogTail []string `json:"logs"`
}
