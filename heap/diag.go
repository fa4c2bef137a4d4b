package heap

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rasmus-z/clrmd/address"
)

// Step is one recorded heap-walk step (spec.md §4.9).
type Step struct {
	Object        address.Address
	MethodTable   address.Address
	BaseSize      int64
	ComponentSize int64
	Count         int64
}

// corruptStep is the distinguished sentinel recorded when the
// allocation-context skipper (C5) detects non-progress or overshoot
// (spec.md §7): BaseSize carries a negative value so a reader can
// recognize it without a separate flag field.
func corruptStep(obj, next address.Address) Step {
	return Step{Object: obj, MethodTable: next, BaseSize: -1}
}

var (
	stepLogEnabled atomic.Bool
	stepLogSize    atomic.Int64
	stepBuffers    sync.Map // goroutine id (int64) -> *stepBuffer
)

type stepBuffer struct {
	mu    sync.Mutex
	steps []Step
	next  int
}

// EnableStepLog turns on the diagnostic step log process-wide, with a
// per-goroutine ring buffer of size entries. Concurrent heap walks on
// different goroutines never contend for the same buffer (spec.md
// §4.9, §9 "thread-local diagnostic buffer" — Go has no OS-level
// thread-local storage, so each walking goroutine gets its own
// buffer, keyed by its runtime goroutine id, the idiomatic analogue).
func EnableStepLog(size int) {
	if size <= 0 {
		DisableStepLog()
		return
	}
	stepLogSize.Store(int64(size))
	stepLogEnabled.Store(true)
}

// DisableStepLog turns the step log back off. Existing per-goroutine
// buffers are left in place (cheap, bounded) so RecentSteps keeps
// working for a goroutine that already recorded steps.
func DisableStepLog() {
	stepLogEnabled.Store(false)
}

// recordStep is the hot-path hook every heap-walk step calls through.
// When the log is disabled this costs a single atomic load.
func recordStep(s Step) {
	if !stepLogEnabled.Load() {
		return
	}
	id := goroutineID()
	bufAny, _ := stepBuffers.LoadOrStore(id, &stepBuffer{steps: make([]Step, stepLogSize.Load())})
	buf := bufAny.(*stepBuffer)
	buf.mu.Lock()
	buf.steps[buf.next%len(buf.steps)] = s
	buf.next++
	buf.mu.Unlock()
}

// RecentSteps returns a snapshot of the calling goroutine's most
// recently recorded steps, oldest first. Callers on a goroutine that
// never recorded a step get nil.
func RecentSteps() []Step {
	id := goroutineID()
	bufAny, ok := stepBuffers.Load(id)
	if !ok {
		return nil
	}
	buf := bufAny.(*stepBuffer)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	n := len(buf.steps)
	if buf.next < n {
		return append([]Step(nil), buf.steps[:buf.next]...)
	}
	out := make([]Step, n)
	start := buf.next % n
	copy(out, buf.steps[start:])
	copy(out[n-start:], buf.steps[:start])
	return out
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, _ := strconv.ParseInt(string(b[:i]), 10, 64)
	return id
}
