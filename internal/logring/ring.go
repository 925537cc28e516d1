package logring

import (
	"bufio"
	"io"
	"sync"
)

// DefaultCapacity matches the tail depth a dashboard realistically renders.
const DefaultCapacity = 300

// Ring is a goroutine-safe bounded buffer of output lines. When full, the
// oldest line is evicted first. It is in-memory only and scoped to one
// process generation; callers get independent snapshot copies.
type Ring struct {
	mu   sync.Mutex
	buf  []string
	head int
	n    int
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]string, capacity)}
}

// Append adds one line, evicting the oldest when at capacity.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[(r.head+r.n)%len(r.buf)] = line
	if r.n == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.n++
	}
}

// Snapshot returns the current contents oldest-first. The returned slice is
// a copy; it never blocks on new output and can be re-read freely.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Tail returns up to k most recent lines, oldest-first.
func (r *Ring) Tail(k int) []string {
	s := r.Snapshot()
	if k <= 0 || k >= len(s) {
		return s
	}
	return s[len(s)-k:]
}

// Len reports the number of buffered lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap reports the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Pump reads lines from rd and appends them until EOF or read error.
// It is intended to run in its own goroutine per live process so output
// ingestion is never on the start/stop critical path. Long lines are
// truncated at the scanner limit rather than aborting the pump.
func (r *Ring) Pump(rd io.Reader) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		r.Append(sc.Text())
	}
	if err := sc.Err(); err != nil && err != io.ErrClosedPipe {
		r.Append("[supervisor] log pump error: " + err.Error())
	}
}
