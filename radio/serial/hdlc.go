package serial

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
	"encoding/binary"
	"errors"

	"github.com/snksoft/crc"
)

//
// HDLC-like framing on the serial line:
//
//   [0x7E] [escaped payload + FCS] [0x7E]
//
// 0x7E and 0x7D inside the frame are sent as 0x7D followed by the byte
// XOR 0x20. The FCS is CRC-16/X25 over the unescaped payload, little
// endian. Consecutive flags are allowed; empty frames are ignored.
//

const (
	hdlcFlag   = 0x7e
	hdlcEscape = 0x7d
	hdlcXOR    = 0x20
	fcsLength  = 2
)

// MaxFrameSize is the largest payload accepted by the decoder
const MaxFrameSize = 256

var (
	// ErrBadFCS is returned for frames with a checksum error
	ErrBadFCS = errors.New("HDLC frame checksum error")
	// ErrFrameSize is returned for frames that are too short or too long
	ErrFrameSize = errors.New("HDLC frame size error")
)

func fcs(data []byte) uint16 {
	return uint16(crc.CalculateCRC(crc.X25, data))
}

func appendEscaped(buf []byte, b byte) []byte {
	if b == hdlcFlag || b == hdlcEscape {
		return append(buf, hdlcEscape, b^hdlcXOR)
	}
	return append(buf, b)
}

// Encode frames the payload
func Encode(payload []byte) []byte {
	var sum [fcsLength]byte
	binary.LittleEndian.PutUint16(sum[:], fcs(payload))
	ret := make([]byte, 0, len(payload)*2+2*fcsLength+2)
	ret = append(ret, hdlcFlag)
	for _, b := range payload {
		ret = appendEscaped(ret, b)
	}
	for _, b := range sum {
		ret = appendEscaped(ret, b)
	}
	return append(ret, hdlcFlag)
}

// Decoder reassembles frames from a byte stream. Bytes before the first
// flag are discarded so the decoder can start in the middle of a frame.
type Decoder struct {
	buf     []byte
	inFrame bool
	escaped bool
	errors  uint64
}

// NewDecoder creates a decoder
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, MaxFrameSize+fcsLength)}
}

// Errors returns the number of frames dropped because of errors
func (d *Decoder) Errors() uint64 {
	return d.errors
}

// Write feeds bytes to the decoder and calls fn for every complete frame.
// The payload passed to fn is only valid during the call.
func (d *Decoder) Write(data []byte, fn func(payload []byte)) {
	for _, b := range data {
		if b == hdlcFlag {
			if d.inFrame && len(d.buf) > 0 {
				if payload, err := d.check(); err == nil {
					fn(payload)
				} else {
					d.errors++
				}
			}
			d.inFrame = true
			d.escaped = false
			d.buf = d.buf[:0]
			continue
		}
		if !d.inFrame {
			continue
		}
		if b == hdlcEscape {
			d.escaped = true
			continue
		}
		if d.escaped {
			b ^= hdlcXOR
			d.escaped = false
		}
		if len(d.buf) >= MaxFrameSize+fcsLength {
			// Oversized; drop it and wait for the next flag
			d.errors++
			d.inFrame = false
			d.buf = d.buf[:0]
			continue
		}
		d.buf = append(d.buf, b)
	}
}

func (d *Decoder) check() ([]byte, error) {
	if len(d.buf) <= fcsLength {
		return nil, ErrFrameSize
	}
	n := len(d.buf) - fcsLength
	if fcs(d.buf[:n]) != binary.LittleEndian.Uint16(d.buf[n:]) {
		return nil, ErrBadFCS
	}
	return d.buf[:n], nil
}
