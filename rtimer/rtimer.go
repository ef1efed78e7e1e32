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
	"errors"
)

// Ticks is an absolute time value from a free running 32-bit hardware timer.
// The counter wraps around so values must be compared with Before/After and
// never with the ordinary integer operators.
type Ticks uint32

// Before returns true if a is earlier than b. The comparison is correct as
// long as the two values are less than half the counter period apart.
func Before(a, b Ticks) bool {
	return int32(a-b) < 0
}

// After returns true if a is later than b
func After(a, b Ticks) bool {
	return int32(a-b) > 0
}

// Diff returns the signed distance a - b in ticks
func Diff(a, b Ticks) int32 {
	return int32(a - b)
}

// Add returns t shifted by a signed tick count
func (t Ticks) Add(delta int32) Ticks {
	return t + Ticks(delta)
}

// Rate is the tick rate of a timer in ticks per second.
type Rate uint32

// Common timer rates
const (
	Rate32kHz = Rate(32768)
	Rate1MHz  = Rate(1000000)
)

// FromMicroseconds converts a duration in microseconds to ticks. The value is
// always rounded down so a window computed from it never extends into the
// next slot.
func (r Rate) FromMicroseconds(us uint32) Ticks {
	return Ticks(uint64(us) * uint64(r) / 1000000)
}

// FromMicrosecondsSigned converts a signed microsecond value, rounding toward
// zero.
func (r Rate) FromMicrosecondsSigned(us int32) int32 {
	if us < 0 {
		return -int32(r.FromMicroseconds(uint32(-us)))
	}
	return int32(r.FromMicroseconds(uint32(us)))
}

// ToMicroseconds converts a signed tick count to microseconds
func (r Rate) ToMicroseconds(ticks int32) int32 {
	return int32(int64(ticks) * 1000000 / int64(r))
}

// Callback is invoked when an armed timer expires. The argument is the time
// the timer was armed for, not the time the callback runs.
type Callback func(at Ticks)

// Timer is the one-shot hardware timer. There is at most one pending
// expiry; arming the timer again replaces it. Callbacks run on the timer's
// dispatch context and must not block.
type Timer interface {
	// Now returns the current time.
	Now() Ticks
	// Arm schedules the callback at an absolute time. It returns ErrTimeInPast
	// if the time has already passed.
	Arm(at Ticks, cb Callback) error
	// Cancel removes any pending expiry.
	Cancel()
	// Rate returns the tick rate
	Rate() Rate
}

var (
	// ErrTimeInPast is returned when a timer is armed for a time that has
	// already passed.
	ErrTimeInPast = errors.New("time is in the past")
	// ErrTimerStopped is returned when the timer is no longer running
	ErrTimerStopped = errors.New("timer is stopped")
)
