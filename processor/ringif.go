package processor

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

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/slot"
)

// DefaultPollInterval is how often the handoff rings are drained
const DefaultPollInterval = 10 * time.Millisecond

// RingInterface is the interface to the slot engine. The slot engine
// hands received frames, transmission results and slot log records to the
// background domain through SPSC rings. The rings have no notification so
// they are polled from a background timer; this is the only consumer of
// the rings. Frames and results are forwarded on the two output channels
// while the log records are handled here.
type RingInterface struct {
	context  *server.Context
	interval time.Duration
	rx       chan slot.Received
	tx       chan slot.TxResult
	mutex    *sync.Mutex
	timer    rtimer.Stopper
	running  bool
	closed   bool

	// Last seen drop counters for the rings
	rxDropped  uint64
	logDropped uint64
}

// NewRingInterface creates the ring interface. The rings are polled at the
// interval once the interface is started.
func NewRingInterface(context *server.Context, interval time.Duration) *RingInterface {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &RingInterface{
		context:  context,
		interval: interval,
		rx:       make(chan slot.Received, context.Engine.RxQueue().Cap()),
		tx:       make(chan slot.TxResult, context.Engine.TxQueue().Cap()),
		mutex:    &sync.Mutex{},
	}
}

// Start starts polling the rings
func (r *RingInterface) Start() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.running || r.closed {
		return
	}
	r.running = true
	r.timer = r.context.Clock.AfterFunc(r.interval, r.tick)
}

func (r *RingInterface) tick() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.running {
		return
	}
	r.poll()
	r.timer = r.context.Clock.AfterFunc(r.interval, r.tick)
}

// Stop stops polling and closes the output channels. The stages reading
// the channels will terminate.
func (r *RingInterface) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return
	}
	r.running = false
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	close(r.rx)
	close(r.tx)
}

// Poll drains the rings once. It returns the number of records read.
func (r *RingInterface) Poll() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return 0
	}
	return r.poll()
}

// poll is called with the mutex held
func (r *RingInterface) poll() int {
	engine := r.context.Engine
	count := 0
	// Records stay in the rings while the stages are busy
	for len(r.rx) < cap(r.rx) {
		rec, ok := engine.RxQueue().Get()
		if !ok {
			break
		}
		r.rx <- rec
		count++
	}
	for len(r.tx) < cap(r.tx) {
		res, ok := engine.TxQueue().Get()
		if !ok {
			break
		}
		r.tx <- res
		count++
	}
	for {
		rec, ok := engine.LogQueue().Get()
		if !ok {
			break
		}
		r.slotLog(rec)
		count++
	}
	if d := engine.RxQueue().Dropped(); d != r.rxDropped {
		monitoring.RxDropped.Add(uint32(d - r.rxDropped))
		r.rxDropped = d
	}
	if d := engine.LogQueue().Dropped(); d != r.logDropped {
		logging.RecordsDropped(d - r.logDropped)
		monitoring.LogDropped.Add(uint32(d - r.logDropped))
		r.logDropped = d
	}
	if count > 0 {
		monitoring.RingIn.Add(uint32(count))
	}
	monitoring.QueuedPackets.Set(float64(r.context.Queue.Total()))
	return count
}

// slotLog handles a single slot log record
func (r *RingInterface) slotLog(rec slot.LogRecord) {
	switch rec.Kind {
	case slot.LogDropped:
		monitoring.SlotsDropped.Add(rec.Dropped)
	case slot.LogAnomaly:
		monitoring.ClockAnomalies.Increment()
		logging.Warning("%s", rec.String())
	case slot.LogFault:
		monitoring.RadioFaults.Increment()
		logging.Error("%s", rec.String())
	case slot.LogTx, slot.LogRx:
		if rec.Correction != 0 {
			r.context.Stats.OnSync(rec.Correction)
			abs := rec.Correction
			if abs < 0 {
				abs = -abs
			}
			monitoring.SyncCorrection.Add(float64(abs))
		}
	}
	if r.context.Config.SlotLog {
		logging.Debug("%s", rec.String())
		r.context.Router.Publish(events.NewSlotLog(r.context.Address, rec.ASN, rec.String()))
	}
}

// RxOutput returns the channel with received frames
func (r *RingInterface) RxOutput() <-chan slot.Received {
	return r.rx
}

// TxOutput returns the channel with transmission results
func (r *RingInterface) TxOutput() <-chan slot.TxResult {
	return r.tx
}
