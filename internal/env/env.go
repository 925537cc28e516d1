package env

import (
	"os"
	"sort"
	"strings"
)

// Var maps environment keys to values.
type Var map[string]string

// Env composes the environment handed to spawned applications:
// OS environment as base, then supervisor-global overrides, then
// per-definition overrides last.
type Env struct {
	global Var
	base   Var // cached OS environment
}

func New() *Env {
	return &Env{global: make(Var)}
}

// FromOS caches the current process environment as the base layer.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := splitKV(kv); ok {
			base[k] = v
		}
	}
	e.base = base
}

// Set records a supervisor-global variable applied to every spawned app.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.global == nil {
		e.global = make(Var)
	}
	e.global[k] = v
}

// SetAll records each "K=V" entry as a global variable.
func (e *Env) SetAll(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := splitKV(kv); ok {
			e.Set(k, v)
		}
	}
}

// Merge builds the final "K=V" slice for one spawn: base OS env, then
// globals, then perApp entries. ${VAR} references are expanded once
// against the composed map (no recursion). Output order is stable.
func (e *Env) Merge(perApp []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.global)+len(perApp))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for _, kv := range perApp {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func splitKV(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} occurrences using the composed map. Single pass.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
