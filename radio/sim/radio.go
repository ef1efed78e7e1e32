package sim

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
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

// Radio is a simulated radio.Driver attached to a Medium
type Radio struct {
	medium    *Medium
	timer     *rtimer.VirtualTimer
	id        int
	on        bool
	channel   uint8
	txEnd     uint64
	rx        *reception
	pending   []byte
	pendingTS rtimer.Ticks
	lastTS    rtimer.Ticks
	faulty    bool
}

// SetFaulty makes every subsequent call fail with radio.ErrRadioFault
func (r *Radio) SetFaulty(faulty bool) {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	r.faulty = faulty
}

// Channel returns the current channel
func (r *Radio) Channel() uint8 {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return r.channel
}

// IsOn returns true if the radio is on
func (r *Radio) IsOn() bool {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return r.on
}

// On turns the receiver on
func (r *Radio) On() error {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	if r.faulty {
		return radio.ErrRadioFault
	}
	r.on = true
	return nil
}

// Off turns the radio off. A reception in progress is lost.
func (r *Radio) Off() error {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	if r.faulty {
		return radio.ErrRadioFault
	}
	r.on = false
	r.rx = nil
	return nil
}

// SetChannel tunes the radio
func (r *Radio) SetChannel(channel uint8) error {
	if !radio.ValidChannel(channel) {
		return radio.ErrInvalidChannel
	}
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	if r.faulty {
		return radio.ErrRadioFault
	}
	if channel != r.channel {
		r.rx = nil
	}
	r.channel = channel
	return nil
}

// Send puts the frame on the air
func (r *Radio) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameLength {
		return radio.ErrFrameTooLong
	}
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	if r.faulty {
		return radio.ErrRadioFault
	}
	if !r.on {
		return radio.ErrRadioOff
	}
	r.medium.transmit(r, frame)
	return nil
}

// Read returns the pending frame
func (r *Radio) Read(buf []byte) (int, error) {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	if r.faulty {
		return 0, radio.ErrRadioFault
	}
	if r.pending == nil {
		return 0, nil
	}
	n := copy(buf, r.pending)
	r.lastTS = r.pendingTS
	r.pending = nil
	return n, nil
}

// RxTimestamp returns the local time the last read frame started
func (r *Radio) RxTimestamp() rtimer.Ticks {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return r.lastTS
}

// ChannelClear returns false if another radio is transmitting on the channel
func (r *Radio) ChannelClear() bool {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return !r.medium.busy(r)
}

// Receiving returns true while a frame is arriving
func (r *Radio) Receiving() bool {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return r.rx != nil && r.rx.tx.end > r.medium.clock.Now()
}

// Pending returns true if a frame can be read
func (r *Radio) Pending() bool {
	r.medium.mutex.Lock()
	defer r.medium.mutex.Unlock()
	return r.pending != nil
}

// LastRSSI returns the signal strength of the last frame
func (r *Radio) LastRSSI() int8 {
	return DefaultRSSI
}
