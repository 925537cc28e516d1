package appvisor

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/appvisor/internal/config"
	"github.com/loykin/appvisor/internal/history"
	"github.com/loykin/appvisor/internal/metrics"
	"github.com/loykin/appvisor/internal/registry"
	iapi "github.com/loykin/appvisor/internal/server"
	"github.com/loykin/appvisor/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Definition = registry.Definition

type Status = supervisor.Status

type StartResult = supervisor.StartResult

type State = supervisor.State

type Config = supervisor.Config

type HistoryConfig = history.Config

type HistorySink = history.Sink

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateStopping = supervisor.StateStopping
	StateCrashed  = supervisor.StateCrashed
)

// ErrorKindOf classifies a supervisor failure; see the supervisor package
// for the set of kinds.
func ErrorKindOf(err error) string { return string(supervisor.KindOf(err)) }

// Registry is a thin facade over the SQLite-backed definition store.
type Registry struct{ inner *registry.Store }

// OpenRegistry opens (or creates) the definition database at path.
func OpenRegistry(path string) (*Registry, error) {
	s, err := registry.Open(path)
	if err != nil {
		return nil, err
	}
	return &Registry{inner: s}, nil
}

func (r *Registry) Close() error { return r.inner.Close() }

func (r *Registry) Create(ctx context.Context, d Definition) (Definition, error) {
	return r.inner.Create(ctx, d)
}

func (r *Registry) Update(ctx context.Context, d Definition) (Definition, error) {
	return r.inner.Update(ctx, d)
}

func (r *Registry) Delete(ctx context.Context, id int64) error { return r.inner.Delete(ctx, id) }

func (r *Registry) Get(ctx context.Context, id int64) (Definition, error) {
	return r.inner.Get(ctx, id)
}

func (r *Registry) GetByName(ctx context.Context, name string) (Definition, error) {
	return r.inner.GetByName(ctx, name)
}

func (r *Registry) List(ctx context.Context) ([]Definition, error) { return r.inner.List(ctx) }

// ImportYAML upserts definitions from an apps.yaml file.
func (r *Registry) ImportYAML(ctx context.Context, path string) ([]string, error) {
	return registry.ImportYAML(ctx, r.inner, path)
}

// Supervisor is a thin facade over the internal supervisor for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor reading definitions from reg.
func New(reg *Registry, c Config) *Supervisor {
	return &Supervisor{inner: supervisor.New(reg.inner, c)}
}

func (s *Supervisor) SetGlobalEnv(kvs []string) { s.inner.SetGlobalEnv(kvs) }

func (s *Supervisor) SetHistorySinks(sinks ...HistorySink) { s.inner.SetHistorySinks(sinks...) }

func (s *Supervisor) Start(ctx context.Context, id int64) (StartResult, error) {
	return s.inner.Start(ctx, id)
}

func (s *Supervisor) Stop(ctx context.Context, id int64) (Status, error) {
	return s.inner.Stop(ctx, id)
}

func (s *Supervisor) Restart(ctx context.Context, id int64) (StartResult, error) {
	return s.inner.Restart(ctx, id)
}

func (s *Supervisor) Status(ctx context.Context, id int64) (Status, error) {
	return s.inner.Status(ctx, id)
}

func (s *Supervisor) Logs(ctx context.Context, id int64) ([]string, error) {
	return s.inner.Logs(ctx, id)
}

func (s *Supervisor) List(ctx context.Context) ([]Status, error) { return s.inner.List(ctx) }

func (s *Supervisor) Shutdown(ctx context.Context) { s.inner.Shutdown(ctx) }

// LoadConfig reads a daemon TOML configuration file.
func LoadConfig(path string) (cfg.FileConfig, error) { return cfg.Load(path) }

// NewHistorySink constructs the sink described by c (sqlite, postgres or
// clickhouse).
func NewHistorySink(c HistoryConfig) (HistorySink, error) { return history.NewSink(c) }

// NewHTTPServer starts an HTTP server exposing the management API.
func NewHTTPServer(addr, basePath string, s *Supervisor, r *Registry) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner, r.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
