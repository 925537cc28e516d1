package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/appvisor/internal/env"
	"github.com/loykin/appvisor/internal/history"
	"github.com/loykin/appvisor/internal/logring"
	"github.com/loykin/appvisor/internal/metrics"
	"github.com/loykin/appvisor/internal/probe"
	"github.com/loykin/appvisor/internal/registry"
)

// Config holds the supervisor's policy knobs. All timings are policy, not
// invariants; tests and deployments tune them instead of relying on the
// defaults below.
type Config struct {
	Launcher         string        `toml:"launcher" mapstructure:"launcher"`
	ProbeTimeout     time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
	LivenessAttempts int           `toml:"liveness_attempts" mapstructure:"liveness_attempts"`
	LivenessInterval time.Duration `toml:"liveness_interval" mapstructure:"liveness_interval"`
	StopWait         time.Duration `toml:"stop_wait" mapstructure:"stop_wait"`
	StopPollInterval time.Duration `toml:"stop_poll_interval" mapstructure:"stop_poll_interval"`
	EscalationWait   time.Duration `toml:"escalation_wait" mapstructure:"escalation_wait"`
	RingCapacity     int           `toml:"log_buffer_lines" mapstructure:"log_buffer_lines"`
	StartupLogLines  int           `toml:"startup_log_lines" mapstructure:"startup_log_lines"`
}

func (c Config) withDefaults() Config {
	if c.Launcher == "" {
		c.Launcher = DefaultLauncher
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = probe.DefaultTimeout
	}
	if c.LivenessAttempts <= 0 {
		c.LivenessAttempts = 20
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 100 * time.Millisecond
	}
	if c.StopWait <= 0 {
		c.StopWait = 3 * time.Second
	}
	if c.StopPollInterval <= 0 {
		c.StopPollInterval = 100 * time.Millisecond
	}
	if c.EscalationWait <= 0 {
		c.EscalationWait = 2 * time.Second
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = logring.DefaultCapacity
	}
	if c.StartupLogLines <= 0 {
		c.StartupLogLines = 20
	}
	return c
}

// Supervisor owns process lifecycle for the applications described by a
// registry source: start, stop, restart, status and log capture. One
// instance owns its handle table outright; there are no package-level
// singletons, so tests run multiple supervisors with isolated state. The
// table always starts empty: processes from a previous supervisor session
// are never reattached.
type Supervisor struct {
	cfg    Config
	src    registry.Source
	prober probe.Prober
	cmdFor CommandFunc
	envM   *env.Env

	mu      sync.RWMutex
	entries map[int64]*entry

	sinkMu sync.Mutex
	sinks  []history.Sink
}

func New(src registry.Source, cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{
		cfg:     cfg,
		src:     src,
		prober:  probe.TCP{Timeout: cfg.ProbeTimeout},
		cmdFor:  defaultCommand(cfg.Launcher),
		envM:    env.New(),
		entries: make(map[int64]*entry),
	}
}

// SetProber replaces the port prober. Intended for tests.
func (s *Supervisor) SetProber(p probe.Prober) { s.prober = p }

// SetCommandFunc replaces how launch commands are built.
func (s *Supervisor) SetCommandFunc(f CommandFunc) {
	if f != nil {
		s.cmdFor = f
	}
}

// SetHistorySinks configures lifecycle event sinks. Passing none clears
// the list.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.sinkMu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.sinkMu.Unlock()
}

// SetGlobalEnv records "K=V" variables applied to every spawned app.
func (s *Supervisor) SetGlobalEnv(kvs []string) { s.envM.SetAll(kvs) }

// Start spawns the application and confirms liveness by polling its port.
// On failure nothing visible is left half-mutated: either the prior state
// is untouched, or the record lands in a terminal crashed state.
func (s *Supervisor) Start(ctx context.Context, id int64) (StartResult, error) {
	def, err := s.definition(ctx, id)
	if err != nil {
		return StartResult{}, err
	}
	if !def.Enabled {
		return StartResult{}, newErr(KindDisabled, "app %q is disabled", def.Name)
	}
	e := s.entry(id)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	bound := s.prober.IsBound(def.Host, def.Port)
	cur := s.deriveLocked(e, def, bound)
	if cur.State.active() {
		return StartResult{}, newErr(KindAlreadyRunning, "app %q is %s", def.Name, cur.State)
	}
	if bound {
		return StartResult{}, newErr(KindPortInUse, "port %s:%d already in use", def.Host, def.Port)
	}
	if fi, statErr := os.Stat(def.Path); statErr != nil || !fi.IsDir() {
		return StartResult{}, newErr(KindSpawnFailed, "workdir %q is not an existing directory", def.Path)
	}

	cmd := s.cmdFor(def)
	cmd.Dir = def.Path
	cmd.Env = s.envM.Merge(def.Env)
	cmd.SysProcAttr = sysProcAttr()

	// stdout and stderr share one pipe feeding the ring
	pr, pw, pipeErr := os.Pipe()
	if pipeErr != nil {
		return StartResult{}, wrapErr(KindSpawnFailed, pipeErr, "output pipe for %q", def.Name)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	ring := logring.New(s.cfg.RingCapacity)
	ring.Append("[supervisor] starting: " + strings.Join(cmd.Args, " "))
	ring.Append("[supervisor] workdir=" + def.Path)

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return StartResult{}, wrapErr(KindSpawnFailed, err, "spawn %q", def.Name)
	}
	_ = pw.Close() // child holds the write end now

	rec := &record{
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		state:     StateStarting,
		ring:      ring,
		cmd:       cmd,
		waitDone:  make(chan struct{}),
	}
	e.mu.Lock()
	e.rec = rec
	e.mu.Unlock()
	metrics.IncTransition(def.Name, string(cur.State), string(StateStarting))
	slog.Info("app starting", "name", def.Name, "pid", rec.pid, "port", def.Port)

	go func() {
		ring.Pump(pr)
		_ = pr.Close()
	}()
	go s.watch(e, rec, def)

	began := time.Now()
	if err := s.confirmLiveness(def, rec); err != nil {
		// no orphaned half-started processes
		_ = killGroup(rec.pid)
		waitBrief(rec, 500*time.Millisecond)
		e.setState(StateCrashed)
		metrics.IncTransition(def.Name, string(StateStarting), string(StateCrashed))
		metrics.IncCrash(def.Name)
		s.emit(history.Event{
			Type: history.EventCrash, AppID: def.ID, Name: def.Name,
			PID: rec.pid, Port: def.Port, Detail: err.Error(),
		})
		slog.Warn("app failed liveness confirmation", "name", def.Name, "pid", rec.pid, "error", err)
		return StartResult{}, err
	}

	e.setState(StateRunning)
	metrics.IncTransition(def.Name, string(StateStarting), string(StateRunning))
	metrics.IncStart(def.Name)
	metrics.IncRunning()
	metrics.ObserveLivenessConfirm(def.Name, time.Since(began).Seconds())
	s.emit(history.Event{
		Type: history.EventStart, AppID: def.ID, Name: def.Name,
		PID: rec.pid, Port: def.Port,
	})
	slog.Info("app running", "name", def.Name, "pid", rec.pid, "port", def.Port)

	st := s.deriveLocked(e, def, true)
	return StartResult{Status: st, LogTail: ring.Tail(s.cfg.StartupLogLines)}, nil
}

// confirmLiveness polls the prober until the app's port accepts a
// connection, the process exits, or the attempt budget runs out.
func (s *Supervisor) confirmLiveness(def registry.Definition, rec *record) error {
	for i := 0; i < s.cfg.LivenessAttempts; i++ {
		if rec.exited() {
			detail := ""
			if rec.exitErr != nil {
				detail = ": " + rec.exitErr.Error()
			}
			return newErr(KindLivenessTimeout, "app %q exited during startup%s", def.Name, detail)
		}
		if s.prober.IsBound(def.Host, def.Port) {
			rec.ring.Append("[supervisor] port accepted a connection")
			return nil
		}
		select {
		case <-rec.waitDone:
			// report the early exit on the next loop iteration
		case <-time.After(s.cfg.LivenessInterval):
		}
	}
	return newErr(KindLivenessTimeout, "app %q did not bind %s:%d within %v",
		def.Name, def.Host, def.Port,
		time.Duration(s.cfg.LivenessAttempts)*s.cfg.LivenessInterval)
}

// watch blocks until the OS reports process exit, then funnels the
// transition through the per-id mutex. A stop already in flight keeps the
// exit from being reported as a crash.
func (s *Supervisor) watch(e *entry, rec *record, def registry.Definition) {
	err := rec.cmd.Wait()
	rec.exitErr = err // published by the channel close below
	close(rec.waitDone)

	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.mu.Lock()
	crashed := e.rec == rec && !rec.stopRequested && rec.state == StateRunning
	if crashed {
		rec.state = StateCrashed
	}
	e.mu.Unlock()
	if !crashed {
		return
	}
	detail := "exited unexpectedly"
	if err != nil {
		detail = err.Error()
	}
	metrics.IncTransition(def.Name, string(StateRunning), string(StateCrashed))
	metrics.IncCrash(def.Name)
	metrics.DecRunning()
	s.emit(history.Event{
		Type: history.EventCrash, AppID: def.ID, Name: def.Name,
		PID: rec.pid, Port: def.Port, Detail: detail,
	})
	slog.Warn("app exited unexpectedly", "name", def.Name, "pid", rec.pid, "error", err)
}

// Stop terminates a running application: graceful signal to the tracked
// process group first, then port-based escalation against whatever
// process actually holds the port. It never reports success while the
// port is still bound.
func (s *Supervisor) Stop(ctx context.Context, id int64) (Status, error) {
	def, err := s.definition(ctx, id)
	if err != nil {
		return Status{}, err
	}
	e := s.entry(id)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	bound := s.prober.IsBound(def.Host, def.Port)
	cur := s.deriveLocked(e, def, bound)
	if cur.State != StateRunning {
		return cur, newErr(KindNotRunning, "app %q is %s", def.Name, cur.State)
	}
	rec, _, pid, _ := e.snapshot()

	e.mu.Lock()
	rec.stopRequested = true
	rec.state = StateStopping
	e.mu.Unlock()
	metrics.IncTransition(def.Name, string(StateRunning), string(StateStopping))
	rec.ring.Append(fmt.Sprintf("[supervisor] stopping pid=%d", pid))
	slog.Info("stopping app", "name", def.Name, "pid", pid)

	_ = terminateGroup(pid)
	if s.awaitUnbound(def, s.cfg.StopWait) {
		return s.finalizeStop(e, rec, def, pid)
	}

	// The tracked child did not free the port: find the actual occupant
	// (possibly a grandchild that rebound it) and force-terminate that.
	owner, ownerErr := s.prober.OwnerPID(def.Host, def.Port)
	if ownerErr != nil {
		s.revertStop(e, rec, def)
		return s.deriveLocked(e, def, true),
			wrapErr(KindShutdownTimeout, ownerErr, "port %s:%d still bound and occupant unknown", def.Host, def.Port)
	}
	slog.Warn("escalating kill", "name", def.Name, "tracked_pid", pid, "owner_pid", owner)
	rec.ring.Append(fmt.Sprintf("[supervisor] escalation: killing pid=%d bound to %s:%d", owner, def.Host, def.Port))
	_ = killPID(int(owner))

	if s.awaitUnbound(def, s.cfg.EscalationWait) {
		return s.finalizeStop(e, rec, def, pid)
	}
	s.revertStop(e, rec, def)
	return s.deriveLocked(e, def, true),
		newErr(KindShutdownTimeout, "port %s:%d still bound after escalated kill", def.Host, def.Port)
}

// awaitUnbound polls until the port frees or wait elapses.
func (s *Supervisor) awaitUnbound(def registry.Definition, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if !s.prober.IsBound(def.Host, def.Port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(s.cfg.StopPollInterval)
	}
}

func (s *Supervisor) finalizeStop(e *entry, rec *record, def registry.Definition, pid int) (Status, error) {
	// Port freed. If the tracked child is somehow still alive, take its
	// group down so nothing is orphaned.
	if !rec.exited() {
		_ = killGroup(pid)
		waitBrief(rec, 500*time.Millisecond)
	}
	e.clear() // record destroyed; captured logs are discarded with it
	metrics.IncTransition(def.Name, string(StateStopping), string(StateStopped))
	metrics.IncStop(def.Name)
	metrics.DecRunning()
	s.emit(history.Event{
		Type: history.EventStop, AppID: def.ID, Name: def.Name,
		PID: pid, Port: def.Port,
	})
	slog.Info("app stopped", "name", def.Name, "pid", pid)
	return s.deriveLocked(e, def, false), nil
}

func (s *Supervisor) revertStop(e *entry, rec *record, def registry.Definition) {
	e.mu.Lock()
	rec.stopRequested = false
	rec.state = StateRunning
	e.mu.Unlock()
	metrics.IncTransition(def.Name, string(StateStopping), string(StateRunning))
	slog.Error("stop failed, record reverted to running", "name", def.Name, "pid", rec.pid)
}

// Restart is stop-then-start as one logical operation. Not running
// degrades to a plain start; a failed stop aborts without starting so two
// live instances can never share a port.
func (s *Supervisor) Restart(ctx context.Context, id int64) (StartResult, error) {
	cur, err := s.Status(ctx, id)
	if err != nil {
		return StartResult{}, err
	}
	if cur.State.active() {
		if _, err := s.Stop(ctx, id); err != nil && KindOf(err) != KindNotRunning {
			return StartResult{}, err
		}
	}
	return s.Start(ctx, id)
}

// Status performs lazy port reconciliation and returns the derived view.
func (s *Supervisor) Status(ctx context.Context, id int64) (Status, error) {
	def, err := s.definition(ctx, id)
	if err != nil {
		return Status{}, err
	}
	e := s.entry(id)
	e.opMu.Lock()
	defer e.opMu.Unlock()
	bound := s.prober.IsBound(def.Host, def.Port)
	return s.deriveLocked(e, def, bound), nil
}

// Logs returns a snapshot of the app's captured output, empty if the app
// has no live record this session.
func (s *Supervisor) Logs(ctx context.Context, id int64) ([]string, error) {
	if _, err := s.definition(ctx, id); err != nil {
		return nil, err
	}
	e := s.peek(id)
	if e == nil {
		return []string{}, nil
	}
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	if rec == nil {
		return []string{}, nil
	}
	return rec.ring.Snapshot(), nil
}

// List snapshots every known definition merged with derived process state.
// It never takes a per-id operation mutex, so an in-flight transition on
// one app cannot block the listing; the running-without-port case is
// reported as crashed without being stored.
func (s *Supervisor) List(ctx context.Context) ([]Status, error) {
	defs, err := s.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	out := make([]Status, 0, len(defs))
	for _, def := range defs {
		st := StateStopped
		var pid int
		var startedAt time.Time
		var rec *record
		if e := s.peek(def.ID); e != nil {
			rec, st, pid, startedAt = e.snapshot()
		}
		serving := false
		if st == StateRunning {
			serving = s.prober.IsBound(def.Host, def.Port)
			if !serving {
				st = StateCrashed
			}
		}
		item := Status{
			ID: def.ID, Name: def.Name, State: st,
			Host: def.Host, Port: def.Port, Enabled: def.Enabled, Serving: serving,
		}
		if rec != nil {
			item.PID = pid
			item.StartedAt = startedAt
			if st == StateRunning {
				item.Uptime = time.Since(startedAt)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Shutdown best-effort stops every active application. Used on daemon
// exit; individual stop failures are logged, not returned.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		if _, err := s.Stop(ctx, id); err != nil && KindOf(err) != KindNotRunning {
			slog.Warn("shutdown: stop failed", "app_id", id, "error", err)
		}
	}
}

// deriveLocked reconciles the stored state against live port truth and
// builds the caller-facing status. Callers hold e.opMu.
func (s *Supervisor) deriveLocked(e *entry, def registry.Definition, bound bool) Status {
	rec, st, pid, startedAt := e.snapshot()
	if rec != nil && st == StateRunning && !bound {
		// lazy reconciliation: port occupancy, not remembered PID, is truth
		e.setState(StateCrashed)
		st = StateCrashed
		metrics.IncTransition(def.Name, string(StateRunning), string(StateCrashed))
		metrics.IncCrash(def.Name)
		metrics.DecRunning()
		s.emit(history.Event{
			Type: history.EventCrash, AppID: def.ID, Name: def.Name,
			PID: pid, Port: def.Port, Detail: "port no longer bound",
		})
		slog.Warn("app lost its port", "name", def.Name, "pid", pid, "port", def.Port)
	}
	status := Status{
		ID: def.ID, Name: def.Name, State: st,
		Host: def.Host, Port: def.Port, Enabled: def.Enabled, Serving: bound,
	}
	if rec != nil {
		status.PID = pid
		status.StartedAt = startedAt
		if st == StateRunning {
			status.Uptime = time.Since(startedAt)
		}
	}
	return status
}

func (s *Supervisor) definition(ctx context.Context, id int64) (registry.Definition, error) {
	def, err := s.src.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return def, newErr(KindNotFound, "app %d not found", id)
	}
	if err != nil {
		return def, fmt.Errorf("load definition %d: %w", id, err)
	}
	return def, nil
}

// entry returns (creating if needed) the handle-table slot for id.
func (s *Supervisor) entry(id int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e == nil {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

// peek returns the slot without creating one.
func (s *Supervisor) peek(id int64) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// emit delivers asynchronously: callers hold per-id operation mutexes and
// a slow sink must not stall a start, stop or status query.
func (s *Supervisor) emit(ev history.Event) {
	s.sinkMu.Lock()
	sinks := append([]history.Sink(nil), s.sinks...)
	s.sinkMu.Unlock()
	if len(sinks) == 0 {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, snk := range sinks {
			if err := snk.Send(ctx, ev); err != nil {
				slog.Warn("history sink send failed", "type", ev.Type, "name", ev.Name, "error", err)
			}
		}
	}()
}

func waitBrief(rec *record, d time.Duration) {
	select {
	case <-rec.waitDone:
	case <-time.After(d):
	}
}
