package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no definition exists for an id or name.
var ErrNotFound = errors.New("app not found")

// ErrNameTaken is returned when a create/update would duplicate a name.
var ErrNameTaken = errors.New("app name already exists")

// Definition is an immutable registry entry describing how to launch one
// managed application. The supervisor reads definitions; it never writes
// process state back into the registry.
type Definition struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`  // working directory, must exist
	Entry     string    `json:"entry"` // "module:callable"
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Args      string    `json:"args,omitempty"` // extra launch arguments, space-separated
	Enabled   bool      `json:"enabled"`
	Env       []string  `json:"env,omitempty"` // extra "K=V" entries for the spawned process
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Source is the read-only contract the supervisor consumes. Definitions
// are fetched fresh per operation, never cached across a start decision.
type Source interface {
	Get(ctx context.Context, id int64) (Definition, error)
	List(ctx context.Context) ([]Definition, error)
}
