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
import (
	"errors"

	"github.com/ExploratoryEngineering/tsch/rtimer"
)

// Timing is the timeslot template. All values are in microseconds and are
// relative to the start of the slot unless noted.
type Timing struct {
	SlotLength uint32
	CCAOffset  uint32
	CCA        uint32
	TxOffset   uint32
	RxAckDelay uint32 // End of frame to radio on for the ACK
	TxAckDelay uint32 // End of frame to ACK transmission
	RxWait     uint32
	AckWait    uint32
	RxTx       uint32
	MaxAck     uint32
	MaxTx      uint32
	RxPoll     uint32 // Polling interval while a frame is arriving
	ScanPoll   uint32 // Polling interval when scanning for beacons
}

// Default timing for a 10 ms slot
const (
	DefaultSlotLength = 10000
	DefaultCCAOffset  = 1800
	DefaultCCA        = 128
	DefaultTxOffset   = 2120
	DefaultRxAckDelay = 800
	DefaultTxAckDelay = 1000
	DefaultRxWait     = 2200
	DefaultAckWait    = 400
	DefaultRxTx       = 192
	DefaultMaxAck     = 2400
	DefaultMaxTx      = 4256
	DefaultRxPoll     = 200
	DefaultScanPoll   = 1000
)

// ErrInvalidTiming is returned when the template doesn't fit in a slot
var ErrInvalidTiming = errors.New("invalid slot timing")

// DefaultTiming returns the standard 10 ms timeslot template
func DefaultTiming() Timing {
	return Timing{
		SlotLength: DefaultSlotLength,
		CCAOffset:  DefaultCCAOffset,
		CCA:        DefaultCCA,
		TxOffset:   DefaultTxOffset,
		RxAckDelay: DefaultRxAckDelay,
		TxAckDelay: DefaultTxAckDelay,
		RxWait:     DefaultRxWait,
		AckWait:    DefaultAckWait,
		RxTx:       DefaultRxTx,
		MaxAck:     DefaultMaxAck,
		MaxTx:      DefaultMaxTx,
		RxPoll:     DefaultRxPoll,
		ScanPoll:   DefaultScanPoll,
	}
}

// Validate checks that every window fits inside the slot
func (t Timing) Validate() error {
	if t.SlotLength == 0 || t.RxPoll == 0 || t.ScanPoll == 0 {
		return ErrInvalidTiming
	}
	if t.CCAOffset+t.CCA > t.TxOffset || t.RxWait/2 > t.TxOffset {
		return ErrInvalidTiming
	}
	if t.RxAckDelay > t.TxAckDelay || t.AckWait/2 > t.TxAckDelay {
		return ErrInvalidTiming
	}
	if t.TxOffset+t.MaxTx+t.TxAckDelay+t.MaxAck > t.SlotLength {
		return ErrInvalidTiming
	}
	return nil
}

// ticks is the template converted to timer ticks. Every value is rounded
// down so windows start early rather than late.
type ticks struct {
	slotLength int32
	ccaOffset  int32
	txOffset   int32
	rxAckDelay int32
	txAckDelay int32
	rxWait     int32
	ackWait    int32
	maxAck     int32
	maxTx      int32
	rxPoll     int32
	scanPoll   int32
	lateLimit  int32
	rate       rtimer.Rate
}

func (t Timing) ticks(rate rtimer.Rate) ticks {
	conv := func(us uint32) int32 {
		return int32(rate.FromMicroseconds(us))
	}
	ret := ticks{
		slotLength: conv(t.SlotLength),
		ccaOffset:  conv(t.CCAOffset),
		txOffset:   conv(t.TxOffset),
		rxAckDelay: conv(t.RxAckDelay),
		txAckDelay: conv(t.TxAckDelay),
		rxWait:     conv(t.RxWait),
		ackWait:    conv(t.AckWait),
		maxAck:     conv(t.MaxAck),
		maxTx:      conv(t.MaxTx),
		rxPoll:     conv(t.RxPoll),
		scanPoll:   conv(t.ScanPoll),
		rate:       rate,
	}
	// A slot that starts later than this can't open its windows in time
	ret.lateLimit = conv(t.TxOffset - t.RxWait/2)
	if ret.rxPoll < 1 {
		ret.rxPoll = 1
	}
	if ret.scanPoll < 1 {
		ret.scanPoll = 1
	}
	return ret
}

// duration returns the air time of a frame in ticks
func (t *ticks) duration(length int) int32 {
	return int32(t.rate.FromMicroseconds(uint32(32 * (length + 3))))
}
