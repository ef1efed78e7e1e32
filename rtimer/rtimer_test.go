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
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestWraparound(t *testing.T) {
	before := Ticks(math.MaxUint32 - 10)
	after := Ticks(5)

	if !Before(before, after) {
		t.Fatal("Expected value before the wrap to be earlier")
	}
	if !After(after, before) {
		t.Fatal("Expected value after the wrap to be later")
	}
	if Before(after, before) {
		t.Fatal("Value after wrap should not be earlier")
	}
	if d := Diff(after, before); d != 16 {
		t.Fatalf("Expected diff 16 but got %d", d)
	}
	if d := Diff(before, after); d != -16 {
		t.Fatalf("Expected diff -16 but got %d", d)
	}
	if before.Add(16) != after {
		t.Fatalf("Add across wrap gave %d", before.Add(16))
	}
	if Before(after, after) || After(after, after) {
		t.Fatal("Equal values are neither before nor after")
	}
}

func TestRateConversion(t *testing.T) {
	if v := Rate32kHz.FromMicroseconds(10000); v != 327 {
		t.Fatalf("Expected 10ms to be 327 ticks (rounded down) but got %d", v)
	}
	if v := Rate1MHz.FromMicroseconds(2120); v != 2120 {
		t.Fatalf("1MHz conversion should be exact, got %d", v)
	}
	if v := Rate32kHz.FromMicrosecondsSigned(-1000); v != -32 {
		t.Fatalf("Expected -32 but got %d", v)
	}
	if v := Rate32kHz.ToMicroseconds(32768); v != 1000000 {
		t.Fatalf("Expected 1 second but got %d", v)
	}
}

func TestVirtualTimerOrder(t *testing.T) {
	clock := NewVirtualClock()
	timer := clock.NewTimer(Rate1MHz, 0, 0)

	var fired []Ticks
	if err := timer.Arm(100, func(at Ticks) { fired = append(fired, at) }); err != nil {
		t.Fatalf("Got error arming timer: %v", err)
	}
	// Re-arming replaces the pending expiry
	if err := timer.Arm(200, func(at Ticks) { fired = append(fired, at) }); err != nil {
		t.Fatalf("Got error arming timer: %v", err)
	}
	clock.Advance(time.Millisecond)
	if len(fired) != 1 || fired[0] != 200 {
		t.Fatalf("Expected a single expiry at 200 but got %v", fired)
	}
	if timer.Now() != 1000 {
		t.Fatalf("Expected local time 1000 but got %d", timer.Now())
	}
	if err := timer.Arm(1000, func(Ticks) {}); err != ErrTimeInPast {
		t.Fatalf("Expected ErrTimeInPast but got %v", err)
	}
}

func TestVirtualTimerAcrossWrap(t *testing.T) {
	clock := NewVirtualClock()
	timer := clock.NewTimer(Rate1MHz, Ticks(math.MaxUint32-500), 0)
	target := timer.Now().Add(1000)
	done := false
	if err := timer.Arm(target, func(at Ticks) {
		if timer.Now() != at {
			t.Errorf("Callback at %d, expected %d", timer.Now(), at)
		}
		done = true
	}); err != nil {
		t.Fatalf("Could not arm across wrap: %v", err)
	}
	clock.Advance(2 * time.Millisecond)
	if !done {
		t.Fatal("Timer did not fire across the wrap point")
	}
}

func TestVirtualTimerDrift(t *testing.T) {
	clock := NewVirtualClock()
	fast := clock.NewTimer(Rate1MHz, 0, 100)
	slow := clock.NewTimer(Rate1MHz, 0, -100)
	clock.Advance(time.Second)
	if d := Diff(fast.Now(), slow.Now()); d != 200 {
		t.Fatalf("Expected 200us drift after one second but got %d", d)
	}

	fired := false
	if err := fast.Arm(fast.Now().Add(10000), func(at Ticks) {
		if Before(fast.Now(), at) {
			t.Errorf("Fired early: %d < %d", fast.Now(), at)
		}
		fired = true
	}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(20 * time.Millisecond)
	if !fired {
		t.Fatal("Drifting timer did not fire")
	}
}

func TestAfterFuncStop(t *testing.T) {
	clock := NewVirtualClock()
	count := 0
	s := clock.AfterFunc(time.Second, func() { count++ })
	clock.AfterFunc(2*time.Second, func() { count += 10 })
	if !s.Stop() {
		t.Fatal("Expected stop to succeed")
	}
	if s.Stop() {
		t.Fatal("Second stop should return false")
	}
	clock.Advance(3 * time.Second)
	if count != 10 {
		t.Fatalf("Expected only the second function to run, count = %d", count)
	}
	if clock.Elapsed() != 3*time.Second {
		t.Fatalf("Clock should be at 3s, is %v", clock.Elapsed())
	}
}

// An expiry that comes due while the previous callback is still running must
// wait for it to return.
func TestWallTimerSerialized(t *testing.T) {
	w := NewWallTimer()
	defer w.Stop()

	var running int32
	var overlaps int32
	done := make(chan struct{})
	second := func(at Ticks) {
		if atomic.LoadInt32(&running) != 0 {
			atomic.AddInt32(&overlaps, 1)
		}
		close(done)
	}
	armed := make(chan error, 1)
	first := func(at Ticks) {
		atomic.StoreInt32(&running, 1)
		time.Sleep(10 * time.Millisecond)
		// Arming from outside the callback while it still runs
		go func() { armed <- w.Arm(w.Now()+200, second) }()
		time.Sleep(40 * time.Millisecond)
		atomic.StoreInt32(&running, 0)
	}
	if err := w.Arm(w.Now()+1000, first); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Second callback did not run")
	}
	if err := <-armed; err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Fatalf("Callbacks overlapped %d times", n)
	}
}

func TestWallTimerRearmInCallback(t *testing.T) {
	w := NewWallTimer()
	defer w.Stop()

	count := int32(0)
	done := make(chan struct{})
	var cb Callback
	cb = func(at Ticks) {
		if atomic.AddInt32(&count, 1) == 3 {
			close(done)
			return
		}
		if err := w.Arm(w.Now()+500, cb); err != nil {
			t.Errorf("Re-arm failed: %v", err)
		}
	}
	if err := w.Arm(w.Now()+500, cb); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Only %d callbacks ran", atomic.LoadInt32(&count))
	}
}
