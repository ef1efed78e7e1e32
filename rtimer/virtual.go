package rtimer

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"container/heap"
	"math"
	"math/bits"
	"sync"
	"time"
)

//
// The virtual clock is a discrete event scheduler used for tests and for the
// mesh simulator. Global time is kept in nanoseconds as a 64-bit value and
// never wraps. Each node gets its own VirtualTimer view of the global clock
// with a tick rate, a start offset and a clock drift in parts per million so
// the synchronization code has something real to correct for.
//

type event struct {
	at    uint64 // global time in ns
	seq   uint64
	fire  func()
	index int
	dead  bool
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x interface{}) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	e.index = -1
	return e
}

// VirtualClock is a deterministic event driven clock.
type VirtualClock struct {
	mutex  *sync.Mutex
	now    uint64
	seq    uint64
	events eventQueue
}

// NewVirtualClock creates a new virtual clock starting at global time 0
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{mutex: &sync.Mutex{}}
}

// Now returns the global time in nanoseconds
func (c *VirtualClock) Now() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Elapsed returns the global time as a duration
func (c *VirtualClock) Elapsed() time.Duration {
	return time.Duration(c.Now())
}

func (c *VirtualClock) schedule(at uint64, fire func()) *event {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if at < c.now {
		at = c.now
	}
	c.seq++
	e := &event{at: at, seq: c.seq, fire: fire}
	heap.Push(&c.events, e)
	return e
}

func (c *VirtualClock) cancel(e *event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e.dead = true
}

// Stopper cancels a scheduled function
type Stopper interface {
	Stop() bool
}

type virtualStopper struct {
	clock *VirtualClock
	e     *event
}

func (v *virtualStopper) Stop() bool {
	v.clock.mutex.Lock()
	defer v.clock.mutex.Unlock()
	if v.e.dead || v.e.index < 0 {
		return false
	}
	v.e.dead = true
	return true
}

// AfterFunc runs f after the duration has elapsed in virtual time.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Stopper {
	now := c.Now()
	return &virtualStopper{clock: c, e: c.schedule(now+uint64(d), f)}
}

// Step runs the next pending event. It returns false if there are no events.
func (c *VirtualClock) Step() bool {
	c.mutex.Lock()
	for len(c.events) > 0 {
		e := heap.Pop(&c.events).(*event)
		if e.dead {
			continue
		}
		c.now = e.at
		c.mutex.Unlock()
		e.fire()
		return true
	}
	c.mutex.Unlock()
	return false
}

// Advance runs every event up to and including now + d and leaves the clock
// at now + d.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mutex.Lock()
	target := c.now + uint64(d)
	c.mutex.Unlock()
	c.RunUntil(target)
}

// RunUntil runs events until the global time reaches target (in ns).
func (c *VirtualClock) RunUntil(target uint64) {
	for {
		c.mutex.Lock()
		if len(c.events) == 0 || c.events[0].at > target {
			if c.now < target {
				c.now = target
			}
			c.mutex.Unlock()
			return
		}
		e := heap.Pop(&c.events).(*event)
		if e.dead {
			c.mutex.Unlock()
			continue
		}
		c.now = e.at
		c.mutex.Unlock()
		e.fire()
	}
}

// VirtualTimer is a node local Timer on top of a VirtualClock.
type VirtualTimer struct {
	clock   *VirtualClock
	rate    Rate
	offset  Ticks
	ppm     float64
	pending *event
	mutex   *sync.Mutex
}

// NewTimer creates a node local timer. The offset is the local tick count at
// global time 0 and driftPPM the clock error in parts per million.
func (c *VirtualClock) NewTimer(rate Rate, offset Ticks, driftPPM float64) *VirtualTimer {
	return &VirtualTimer{
		clock:  c,
		rate:   rate,
		offset: offset,
		ppm:    driftPPM,
		mutex:  &sync.Mutex{},
	}
}

// LocalAt returns the local time at the global time (in ns)
func (t *VirtualTimer) LocalAt(global uint64) Ticks {
	hi, lo := bits.Mul64(global, uint64(t.rate))
	base, _ := bits.Div64(hi, lo, 1e9)
	drift := math.Floor(float64(base) * t.ppm / 1e6)
	return t.offset + Ticks(int64(base)+int64(drift))
}

// Now returns the local time
func (t *VirtualTimer) Now() Ticks {
	return t.LocalAt(t.clock.Now())
}

// Rate returns the local tick rate
func (t *VirtualTimer) Rate() Rate {
	return t.rate
}

// Arm schedules a callback at local time at.
func (t *VirtualTimer) Arm(at Ticks, cb Callback) error {
	global := t.clock.Now()
	delta := Diff(at, t.LocalAt(global))
	if delta <= 0 {
		return ErrTimeInPast
	}
	// Find the first global instant where the local clock reads at least at
	lo := global
	hi := global + 2*uint64(math.Ceil(float64(delta)*1e9/float64(t.rate))) + 2*(1e9/uint64(t.rate)+1)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if Before(t.LocalAt(mid), at) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	target := lo
	t.mutex.Lock()
	if t.pending != nil {
		t.clock.cancel(t.pending)
	}
	var e *event
	e = t.clock.schedule(target, func() {
		t.mutex.Lock()
		if t.pending == e {
			t.pending = nil
		}
		t.mutex.Unlock()
		cb(at)
	})
	t.pending = e
	t.mutex.Unlock()
	return nil
}

// Cancel removes the pending expiry
func (t *VirtualTimer) Cancel() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.pending != nil {
		t.clock.cancel(t.pending)
		t.pending = nil
	}
}

// Clock returns the underlying virtual clock
func (t *VirtualTimer) Clock() *VirtualClock {
	return t.clock
}
