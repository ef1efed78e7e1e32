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
	"sync"
	"time"
)

// WallTimer is a Timer backed by the monotonic system clock with a 1 MHz
// tick rate. The 32-bit counter wraps after roughly 71 minutes. Callbacks
// run on their own goroutine (via time.AfterFunc) and are serialized by the
// dispatch lock. An expiry that fires while a callback runs waits for it and
// is dropped if the timer was re-armed or cancelled in the meantime.
type WallTimer struct {
	start    time.Time
	mutex    *sync.Mutex
	dispatch *sync.Mutex
	pending  *time.Timer
	gen     uint64
	stopped bool
}

// NewWallTimer creates a new wall clock timer
func NewWallTimer() *WallTimer {
	return &WallTimer{start: time.Now(), mutex: &sync.Mutex{}, dispatch: &sync.Mutex{}}
}

// Now returns the time in microseconds since the timer was created
func (w *WallTimer) Now() Ticks {
	return Ticks(uint64(time.Since(w.start) / time.Microsecond))
}

// Rate returns the tick rate (1 MHz)
func (w *WallTimer) Rate() Rate {
	return Rate1MHz
}

// Arm schedules the callback at the absolute time
func (w *WallTimer) Arm(at Ticks, cb Callback) error {
	delta := Diff(at, w.Now())
	if delta <= 0 {
		return ErrTimeInPast
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.stopped {
		return ErrTimerStopped
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.gen++
	gen := w.gen
	w.pending = time.AfterFunc(time.Duration(delta)*time.Microsecond, func() {
		// Arm and Cancel only take w.mutex so a callback may re-arm
		w.dispatch.Lock()
		defer w.dispatch.Unlock()
		w.mutex.Lock()
		current := gen == w.gen && !w.stopped
		if current {
			w.pending = nil
		}
		w.mutex.Unlock()
		if current {
			cb(at)
		}
	})
	return nil
}

// Cancel removes the pending expiry
func (w *WallTimer) Cancel() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.gen++
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

// Stop cancels the timer permanently
func (w *WallTimer) Stop() {
	w.Cancel()
	w.mutex.Lock()
	w.stopped = true
	w.mutex.Unlock()
}

// AfterFunc is the wall clock version of VirtualClock.AfterFunc. It lets the
// background components use a single clock abstraction.
type AfterFuncer interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// SystemClock returns an AfterFuncer backed by the time package.
func SystemClock() AfterFuncer {
	return wallClock{}
}
