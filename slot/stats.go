package slot

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
import "sync/atomic"

// counters are written by the slot engine and read by anyone
type counters struct {
	slots          atomic.Uint64
	droppedSlots   atomic.Uint64
	sleepSlots     atomic.Uint64
	txOK           atomic.Uint64
	txNoAck        atomic.Uint64
	txCollision    atomic.Uint64
	txErr          atomic.Uint64
	beaconsSent    atomic.Uint64
	rxOK           atomic.Uint64
	rxEmpty        atomic.Uint64
	rxInvalid      atomic.Uint64
	acksSent       atomic.Uint64
	corrections    atomic.Uint64
	clockAnomalies atomic.Uint64
}

// Stats is a copy of the slot engine counters
type Stats struct {
	Slots          uint64 // Slots with at least one active cell
	DroppedSlots   uint64 // Slots lost because the timer fired too late
	SleepSlots     uint64 // Active slots where nothing could be done
	TxOK           uint64
	TxNoAck        uint64
	TxCollision    uint64 // Includes failed CCA
	TxErr          uint64
	BeaconsSent    uint64
	RxOK           uint64
	RxEmpty        uint64
	RxInvalid      uint64
	AcksSent       uint64
	Corrections    uint64
	ClockAnomalies uint64
	HandoffDrops   uint64 // Records lost because a handoff ring was full
}

func (c *counters) snapshot() Stats {
	return Stats{
		Slots:          c.slots.Load(),
		DroppedSlots:   c.droppedSlots.Load(),
		SleepSlots:     c.sleepSlots.Load(),
		TxOK:           c.txOK.Load(),
		TxNoAck:        c.txNoAck.Load(),
		TxCollision:    c.txCollision.Load(),
		TxErr:          c.txErr.Load(),
		BeaconsSent:    c.beaconsSent.Load(),
		RxOK:           c.rxOK.Load(),
		RxEmpty:        c.rxEmpty.Load(),
		RxInvalid:      c.rxInvalid.Load(),
		AcksSent:       c.acksSent.Load(),
		Corrections:    c.corrections.Load(),
		ClockAnomalies: c.clockAnomalies.Load(),
	}
}
