package radio

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

// Driver is the radio driver used by the slot engine. Every method must
// return within a bounded time; the slot engine calls them from the timer
// dispatch context. Send starts a transmission and returns immediately, the
// engine knows the air time from the frame length.
type Driver interface {
	// On turns the receiver on
	On() error
	// Off turns the radio off
	Off() error
	// SetChannel changes the channel (11-26)
	SetChannel(channel uint8) error
	// Send starts transmitting the frame
	Send(frame []byte) error
	// Read copies the last received frame into buf and returns its length. It
	// returns 0 when no frame is pending.
	Read(buf []byte) (int, error)
	// RxTimestamp returns the start of frame time for the last frame returned
	// by Read
	RxTimestamp() rtimer.Ticks
	// ChannelClear performs a clear channel assessment
	ChannelClear() bool
	// Receiving returns true while a frame is being received
	Receiving() bool
	// Pending returns true if a complete frame is waiting to be read
	Pending() bool
	// LastRSSI returns the signal strength of the last frame in dBm
	LastRSSI() int8
}

var (
	// ErrRadioOff is returned when the radio is used while switched off
	ErrRadioOff = errors.New("radio is off")
	// ErrInvalidChannel is returned for channels outside 11-26
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrFrameTooLong is returned for frames longer than the PHY allows
	ErrFrameTooLong = errors.New("frame too long")
	// ErrRadioFault is returned when the radio hardware doesn't respond. This
	// is the only radio error the slot engine treats as fatal.
	ErrRadioFault = errors.New("radio fault")
)

// Channel limits for the 2.4 GHz O-QPSK PHY
const (
	MinChannel = 11
	MaxChannel = 26
)

// ValidChannel returns true if the channel is in the 2.4 GHz band
func ValidChannel(channel uint8) bool {
	return channel >= MinChannel && channel <= MaxChannel
}
