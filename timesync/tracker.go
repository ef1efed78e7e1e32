package timesync

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
	"sync"
	"sync/atomic"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

// Join priority limits
const (
	// Unsynchronized is the join priority of a node that isn't synchronized
	Unsynchronized = 0xff
	// DefaultMaxJoinPriority is the highest join priority a node accepts. A
	// node that would get this priority or higher doesn't join.
	DefaultMaxJoinPriority = 32
)

// Defaults in microseconds and parts per million
const (
	DefaultMaxCorrectionUS = 1100
	DefaultMaxDriftPPM     = 40
	DefaultMaxGuardUS      = 1000
)

var (
	// ErrClockAnomaly is returned when a correction is larger than the
	// hardware drift allows. It is not applied.
	ErrClockAnomaly = errors.New("suspected clock anomaly")
	// ErrNotTimeSource is returned for corrections from other neighbors
	ErrNotTimeSource = errors.New("not the time source")
	// ErrCoordinator is returned when a coordinator is given a time source
	ErrCoordinator = errors.New("node is the coordinator")
	// ErrHasTimeSource is returned when a node with a time source tries to
	// become coordinator
	ErrHasTimeSource = errors.New("node already has a time source")
	// ErrJoinPriority is returned when the time source's priority is too high
	ErrJoinPriority = errors.New("join priority too high")
)

// Config holds the synchronization parameters
type Config struct {
	Rate            rtimer.Rate
	MaxCorrectionUS uint32 // Largest single correction accepted
	MaxDriftPPM     uint32 // Drift budget used for the guard extension
	MaxGuardUS      uint32 // Upper bound for the guard extension
	MaxJoinPriority uint8
}

// DefaultConfig returns the default configuration for the tick rate
func DefaultConfig(rate rtimer.Rate) Config {
	return Config{
		Rate:            rate,
		MaxCorrectionUS: DefaultMaxCorrectionUS,
		MaxDriftPPM:     DefaultMaxDriftPPM,
		MaxGuardUS:      DefaultMaxGuardUS,
		MaxJoinPriority: DefaultMaxJoinPriority,
	}
}

// driftShift is the fixed point scale of the drift estimate
const driftShift = 8

// Tracker is the synchronization state of a node: time source, join
// priority, last synchronization and the drift estimate. Update and the
// read methods are safe to call from the slot engine; they only use atomic
// words. Changes to the time source are serialized with a mutex and only
// happen in the background domain.
type Tracker struct {
	config        Config
	maxCorrection int32
	maxGuard      int32

	mutex       *sync.Mutex
	synced      atomic.Bool
	coordinator atomic.Bool
	hasSource   atomic.Bool
	source      atomic.Uint64
	priority    atomic.Uint32

	lastSync     atomic.Uint32
	offset       atomic.Int64 // sum of applied corrections in ticks
	drift        atomic.Int64 // ppm << driftShift
	remainder    int64        // slot engine only
	guardBoost   atomic.Int32
	syncCount    atomic.Uint64
	anomalies    atomic.Uint64
	maxSyncError atomic.Int32
}

// NewTracker creates an unsynchronized tracker
func NewTracker(config Config) *Tracker {
	ret := &Tracker{
		config:        config,
		maxCorrection: int32(config.Rate.FromMicroseconds(config.MaxCorrectionUS)),
		maxGuard:      int32(config.Rate.FromMicroseconds(config.MaxGuardUS)),
		mutex:         &sync.Mutex{},
	}
	ret.priority.Store(Unsynchronized)
	return ret
}

// Reset clears the synchronization state. This is used when the node leaves
// the network.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.synced.Store(false)
	t.coordinator.Store(false)
	t.hasSource.Store(false)
	t.source.Store(0)
	t.priority.Store(Unsynchronized)
	t.offset.Store(0)
	t.drift.Store(0)
	t.guardBoost.Store(0)
}

// BecomeCoordinator makes the node the network's time source with join
// priority 0. It fails if the node already has a time source.
func (t *Tracker) BecomeCoordinator(now rtimer.Ticks) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.hasSource.Load() {
		return ErrHasTimeSource
	}
	if t.coordinator.Load() {
		return ErrCoordinator
	}
	t.coordinator.Store(true)
	t.priority.Store(0)
	t.lastSync.Store(uint32(now))
	t.synced.Store(true)
	return nil
}

// Associate synchronizes to a network through an enhanced beacon from the
// source. The node's join priority is the source's + 1.
func (t *Tracker) Associate(source protocol.LinkAddr, sourcePriority uint8, now rtimer.Ticks) error {
	if err := t.SetTimeSource(source, sourcePriority); err != nil {
		return err
	}
	t.lastSync.Store(uint32(now))
	t.guardBoost.Store(0)
	t.synced.Store(true)
	return nil
}

// SetTimeSource switches to a new time source and recomputes the join
// priority.
func (t *Tracker) SetTimeSource(source protocol.LinkAddr, sourcePriority uint8) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.coordinator.Load() {
		return ErrCoordinator
	}
	priority := uint32(sourcePriority) + 1
	if priority >= uint32(t.config.MaxJoinPriority) {
		return ErrJoinPriority
	}
	t.source.Store(source.ToUint64())
	t.hasSource.Store(true)
	t.priority.Store(priority)
	return nil
}

// TimeSource returns the current time source
func (t *Tracker) TimeSource() (protocol.LinkAddr, bool) {
	if !t.hasSource.Load() {
		return protocol.NullAddr, false
	}
	return protocol.LinkAddrFromUint64(t.source.Load()), true
}

// IsTimeSource returns true if the address is the time source
func (t *Tracker) IsTimeSource(addr protocol.LinkAddr) bool {
	return t.hasSource.Load() && t.source.Load() == addr.ToUint64()
}

// IsCoordinator returns true for the network's root time source
func (t *Tracker) IsCoordinator() bool {
	return t.coordinator.Load()
}

// IsSynced returns true when the node is part of a network
func (t *Tracker) IsSynced() bool {
	return t.synced.Load()
}

// JoinPriority returns the node's join priority
func (t *Tracker) JoinPriority() uint8 {
	return uint8(t.priority.Load())
}

// LastSync returns the time of the last synchronization
func (t *Tracker) LastSync() rtimer.Ticks {
	return rtimer.Ticks(t.lastSync.Load())
}

// SinceSync returns the time since the last synchronization. The result is
// negative once half the counter period has passed.
func (t *Tracker) SinceSync(now rtimer.Ticks) int32 {
	return rtimer.Diff(now, t.LastSync())
}

// Keepalive records a successful exchange with the time source that didn't
// carry a correction
func (t *Tracker) Keepalive(source protocol.LinkAddr, now rtimer.Ticks) {
	if t.IsTimeSource(source) {
		t.lastSync.Store(uint32(now))
		t.guardBoost.Store(0)
	}
}

// Update applies a correction measured on a frame (or ACK) from the source.
// Corrections from other neighbors are ignored. A correction larger than the
// configured maximum is not applied; the guard is widened instead and
// ErrClockAnomaly is returned. This runs in the slot engine.
func (t *Tracker) Update(source protocol.LinkAddr, correction int32, now rtimer.Ticks) (int32, error) {
	if !t.IsTimeSource(source) {
		return 0, ErrNotTimeSource
	}
	abs := correction
	if abs < 0 {
		abs = -abs
	}
	if abs > t.maxCorrection {
		t.anomalies.Add(1)
		boost := t.guardBoost.Load()
		if boost == 0 {
			boost = 1
		}
		boost *= 2
		if boost > t.maxGuard {
			boost = t.maxGuard
		}
		t.guardBoost.Store(boost)
		return 0, ErrClockAnomaly
	}
	if abs > t.maxSyncError.Load() {
		t.maxSyncError.Store(abs)
	}
	elapsed := t.SinceSync(now)
	if t.syncCount.Load() > 0 && elapsed > 0 {
		// Drift seen over this interval in ppm, smoothed 7/8 old + 1/8 new
		sample := int64(correction) * 1000000 << driftShift / int64(elapsed)
		d := t.drift.Load()
		t.drift.Store(d - d/8 + sample/8)
	}
	t.offset.Add(int64(correction))
	t.lastSync.Store(uint32(now))
	t.guardBoost.Store(0)
	t.syncCount.Add(1)
	return correction, nil
}

// DriftPPM returns the smoothed drift estimate relative to the time source
func (t *Tracker) DriftPPM() float64 {
	return float64(t.drift.Load()) / (1 << driftShift)
}

// Compensate returns the number of ticks to add to a slot reference that is
// delta ticks after the previous one, based on the drift estimate. The
// fractional part is carried over to the next call. Slot engine only.
func (t *Tracker) Compensate(delta int32) int32 {
	if !t.hasSource.Load() {
		return 0
	}
	t.remainder += t.drift.Load() * int64(delta)
	scale := int64(1000000) << driftShift
	ticks := t.remainder / scale
	t.remainder -= ticks * scale
	return int32(ticks)
}

// GuardExtension returns how much the receive window must be widened at
// now: the elapsed time since the last synchronization times the drift
// budget, plus the extra margin added after clock anomalies, capped at the
// maximum guard. It is zero right after a resynchronization.
func (t *Tracker) GuardExtension(now rtimer.Ticks) int32 {
	if t.coordinator.Load() {
		return 0
	}
	if !t.synced.Load() {
		return t.maxGuard
	}
	elapsed := int64(t.SinceSync(now))
	if elapsed < 0 {
		// Half a counter period or more without a sync
		return t.maxGuard
	}
	ext := elapsed*int64(t.config.MaxDriftPPM)/1000000 + int64(t.guardBoost.Load())
	if ext > int64(t.maxGuard) {
		ext = int64(t.maxGuard)
	}
	return int32(ext)
}

// Offset returns the sum of all applied corrections
func (t *Tracker) Offset() int64 {
	return t.offset.Load()
}

// Stats holds the synchronization statistics
type Stats struct {
	Synced       bool
	JoinPriority uint8
	Syncs        uint64
	Anomalies    uint64
	MaxSyncError int32
	DriftPPM     float64
	Offset       int64
}

// Stats returns a copy of the statistics
func (t *Tracker) Stats() Stats {
	return Stats{
		Synced:       t.IsSynced(),
		JoinPriority: t.JoinPriority(),
		Syncs:        t.syncCount.Load(),
		Anomalies:    t.anomalies.Load(),
		MaxSyncError: t.maxSyncError.Load(),
		DriftPPM:     t.DriftPPM(),
		Offset:       t.Offset(),
	}
}
