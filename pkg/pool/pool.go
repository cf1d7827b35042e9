// Package pool provides a fixed set of worker slots for connection handling.
//
// Each slot carries an atomic Idle/Busy status. The dispatcher claims a slot
// with TryAcquire, which scans the slots in order and flips the first Idle
// one to Busy, then hands work to it with Spawn. When the work returns the
// slot goes back to Idle. There is no queue: if no slot is Idle the caller
// does the work itself.
package pool

import (
	"sync"
	"sync/atomic"
)

// Status is the state of a worker slot.
type Status int32

const (
	// Idle means the slot can take a connection.
	Idle Status = iota

	// Busy means the slot is serving a connection.
	Busy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Slot is a snapshot of one worker slot.
type Slot struct {
	ID     int    `json:"id"`
	Status Status `json:"-"`
	State  string `json:"status"`
}

// Pool is a fixed-size set of worker slots.
type Pool struct {
	status []atomic.Int32

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	wg sync.WaitGroup

	// hooks are called after every status transition.
	hooks []func(id int, s Status)
}

// Option configures a Pool.
type Option func(*Pool)

// WithStatusHook registers fn to observe every slot status transition.
// fn runs on the goroutine that changed the status and must not block.
// Hooks run in registration order.
func WithStatusHook(fn func(id int, s Status)) Option {
	return func(p *Pool) {
		p.hooks = append(p.hooks, fn)
	}
}

// New creates a pool with size slots, all Idle.
func New(size int, opts ...Option) *Pool {
	if size < 0 {
		size = 0
	}
	p := &Pool{status: make([]atomic.Int32, size)}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of slots. A nil Pool has none.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.status)
}

// Status returns the current status of slot id.
func (p *Pool) Status(id int) Status {
	return Status(p.status[id].Load())
}

// SetStatus stores s for slot id and wakes any Drain waiter.
func (p *Pool) SetStatus(id int, s Status) {
	p.status[id].Store(int32(s))
	p.notify(id, s)
}

func (p *Pool) notify(id int, s Status) {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, fn := range p.hooks {
		fn(id, s)
	}
}

// TryAcquire marks the first Idle slot Busy and returns its id.
// It returns false when every slot is Busy or the pool is shut down.
func (p *Pool) TryAcquire() (int, bool) {
	if p.isClosed() {
		return 0, false
	}
	for id := range p.status {
		if p.status[id].CompareAndSwap(int32(Idle), int32(Busy)) {
			p.notify(id, Busy)
			return id, true
		}
	}
	return 0, false
}

// Spawn runs fn on a new goroutine for slot id, which must already be Busy.
// The slot is marked Idle when fn returns, even if it panics. Spawn returns
// false, with the slot released and fn not run, once the pool is shut down.
func (p *Pool) Spawn(id int, fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.SetStatus(id, Idle)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.SetStatus(id, Idle)
		fn()
	}()
	return true
}

// Busy returns the number of Busy slots.
func (p *Pool) Busy() int {
	if p == nil {
		return 0
	}
	n := 0
	for id := range p.status {
		if p.Status(id) == Busy {
			n++
		}
	}
	return n
}

// Snapshot returns the status of every slot in id order.
func (p *Pool) Snapshot() []Slot {
	if p == nil {
		return []Slot{}
	}
	out := make([]Slot, len(p.status))
	for id := range p.status {
		s := p.Status(id)
		out[id] = Slot{ID: id, Status: s, State: s.String()}
	}
	return out
}

// Drain blocks until every slot is Idle. It cannot be canceled.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.Busy() > 0 {
		p.cond.Wait()
	}
}

// Shutdown stops handing out slots and waits for every spawned goroutine to
// return.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
