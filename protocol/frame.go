package protocol

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

	"github.com/snksoft/crc"
)

//
// IEEE 802.15.4-2015 (frame version 2) MAC frames with the subset of
// information elements TSCH uses:
//
//   Header IE 0x1e      ACK/NACK time correction
//   Payload IE group 1  MLME, nested TSCH synchronization IE (ASN + join priority)
//   Payload IE group 5  IETF, 6top sub-IE (0xc9) carrying a 6P message
//
// Addressing is either absent, extended (8 bytes) or the short broadcast
// address 0xffff. Only the destination PAN ID is sent when both addresses
// are present (PAN ID compression).
//

// FrameType is the 802.15.4 frame type
type FrameType uint8

// Frame types
const (
	FrameBeacon  = FrameType(0)
	FrameData    = FrameType(1)
	FrameAck     = FrameType(2)
	FrameCommand = FrameType(3)
)

// String returns the frame type name
func (f FrameType) String() string {
	switch f {
	case FrameBeacon:
		return "Beacon"
	case FrameData:
		return "Data"
	case FrameAck:
		return "Ack"
	case FrameCommand:
		return "Command"
	}
	return "Unknown"
}

const (
	frameVersion2015 = 2

	addrModeNone     = 0
	addrModeShort    = 2
	addrModeExtended = 3

	ieTimeCorrection = 0x1e
	ieHeaderTerm1    = 0x7e
	ieHeaderTerm2    = 0x7f

	ieGroupMLME        = 0x1
	ieGroupIETF        = 0x5
	ieGroupTermination = 0xf

	ieSubTSCHSync = 0x1a
	ieSubSixTop   = 0xc9

	// FCSLength is the length of the frame check sequence
	FCSLength = 2
	// MaxFrameLength is the largest PSDU for the 2.4 GHz O-QPSK PHY
	MaxFrameLength = 127
)

// fcsParams is CRC-16/KERMIT, the ITU-T polynomial with reflected input and
// output that 802.15.4 uses for its FCS.
var fcsParams = &crc.Parameters{
	Width:      16,
	Polynomial: 0x1021,
	ReflectIn:  true,
	ReflectOut: true,
	Init:       0x0000,
	FinalXor:   0x0000,
}

// FCS calculates the 802.15.4 frame check sequence
func FCS(data []byte) uint16 {
	return uint16(crc.CalculateCRC(fcsParams, data))
}

// TimeCorrection is the ACK/NACK time correction header IE. The correction
// is the measured arrival error in microseconds (12 bit signed).
type TimeCorrection struct {
	Microseconds int16
	Nack         bool
}

// SyncInfo is the TSCH synchronization payload IE carried by enhanced
// beacons
type SyncInfo struct {
	ASN          ASN
	JoinPriority uint8
}

// Frame is an 802.15.4 MAC frame
type Frame struct {
	Type           FrameType
	FramePending   bool
	AckRequest     bool
	SeqNum         uint8
	PANID          uint16
	Destination    LinkAddr // NullAddr when absent
	Source         LinkAddr // NullAddr when absent
	TimeCorrection *TimeCorrection
	Sync           *SyncInfo
	SixP           []byte // Encoded 6P message
	Payload        []byte
}

// IsEnhancedBeacon returns true for beacons carrying TSCH synchronization
func (f *Frame) IsEnhancedBeacon() bool {
	return f.Type == FrameBeacon && f.Sync != nil
}

func addrMode(a LinkAddr) uint16 {
	switch {
	case a.IsNull():
		return addrModeNone
	case a.IsBroadcast():
		return addrModeShort
	default:
		return addrModeExtended
	}
}

func (f *Frame) hasPayloadIEs() bool {
	return f.Sync != nil || len(f.SixP) > 0
}

func boolBit(b bool, shift uint) uint16 {
	if b {
		return 1 << shift
	}
	return 0
}

func putUint16(buffer []byte, pos *int, v uint16) error {
	if len(buffer) < *pos+2 {
		return ErrBufferTruncated
	}
	binary.LittleEndian.PutUint16(buffer[*pos:], v)
	*pos += 2
	return nil
}

func getUint16(buffer []byte, pos *int) (uint16, error) {
	if len(buffer) < *pos+2 {
		return 0, ErrBufferTruncated
	}
	v := binary.LittleEndian.Uint16(buffer[*pos:])
	*pos += 2
	return v, nil
}

func encodeAddr(a LinkAddr, buffer []byte, pos *int) error {
	switch addrMode(a) {
	case addrModeShort:
		return putUint16(buffer, pos, 0xffff)
	case addrModeExtended:
		return a.encode(buffer, pos)
	}
	return nil
}

func decodeAddr(mode uint16, buffer []byte, pos *int) (LinkAddr, error) {
	switch mode {
	case addrModeNone:
		return NullAddr, nil
	case addrModeShort:
		v, err := getUint16(buffer, pos)
		if err != nil {
			return NullAddr, err
		}
		if v != 0xffff {
			return NullAddr, ErrInvalidParameterFormat
		}
		return BroadcastAddr, nil
	case addrModeExtended:
		a := LinkAddr{}
		err := a.decode(buffer, pos)
		return a, err
	}
	return NullAddr, ErrInvalidParameterFormat
}

// MarshalBinary encodes the frame including the FCS
func (f *Frame) MarshalBinary() ([]byte, error) {
	buffer := make([]byte, MaxFrameLength)
	n, _, err := f.marshal(buffer)
	if err != nil {
		return nil, err
	}
	return buffer[:n], nil
}

// MarshalTo encodes the frame into buffer and returns the length. Nothing
// is allocated so the slot engine can use it for enhanced ACKs.
func (f *Frame) MarshalTo(buffer []byte) (int, error) {
	n, _, err := f.marshal(buffer)
	return n, err
}

// MarshalBeacon encodes an enhanced beacon and returns the offset of the
// synchronization IE content so UpdateBeacon can patch the ASN and join
// priority right before the beacon is sent.
func (f *Frame) MarshalBeacon() ([]byte, int, error) {
	if f.Sync == nil {
		return nil, 0, ErrInvalidFrameType
	}
	buffer := make([]byte, MaxFrameLength)
	n, offset, err := f.marshal(buffer)
	if err != nil {
		return nil, 0, err
	}
	return buffer[:n], offset, nil
}

// UpdateBeacon writes a new ASN and join priority into an encoded beacon
// and recalculates the FCS
func UpdateBeacon(frame []byte, syncOffset int, asn ASN, joinPriority uint8) error {
	if syncOffset <= 0 || len(frame) < syncOffset+ASNLength+1+FCSLength {
		return ErrBufferTruncated
	}
	pos := syncOffset
	if err := asn.encode(frame, &pos); err != nil {
		return err
	}
	frame[pos] = joinPriority
	body := len(frame) - FCSLength
	binary.LittleEndian.PutUint16(frame[body:], FCS(frame[:body]))
	return nil
}

func (f *Frame) marshal(buffer []byte) (int, int, error) {
	if f.Type > FrameCommand {
		return 0, 0, ErrInvalidFrameType
	}
	pos := 0
	syncOffset := 0

	dstMode := addrMode(f.Destination)
	srcMode := addrMode(f.Source)
	headerIEs := f.TimeCorrection != nil
	ieList := headerIEs || f.hasPayloadIEs()
	panIDComp := dstMode != addrModeNone && srcMode != addrModeNone

	fcf := uint16(f.Type) |
		boolBit(f.FramePending, 4) |
		boolBit(f.AckRequest, 5) |
		boolBit(panIDComp, 6) |
		boolBit(ieList, 9) |
		dstMode<<10 |
		frameVersion2015<<12 |
		srcMode<<14
	if err := putUint16(buffer, &pos, fcf); err != nil {
		return 0, 0, err
	}
	if len(buffer) < pos+1 {
		return 0, 0, ErrBufferTruncated
	}
	buffer[pos] = f.SeqNum
	pos++

	if dstMode != addrModeNone {
		if err := putUint16(buffer, &pos, f.PANID); err != nil {
			return 0, 0, err
		}
		if err := encodeAddr(f.Destination, buffer, &pos); err != nil {
			return 0, 0, err
		}
	}
	if srcMode != addrModeNone {
		if !panIDComp {
			if err := putUint16(buffer, &pos, f.PANID); err != nil {
				return 0, 0, err
			}
		}
		if err := encodeAddr(f.Source, buffer, &pos); err != nil {
			return 0, 0, err
		}
	}

	if f.TimeCorrection != nil {
		if err := putUint16(buffer, &pos, 2|ieTimeCorrection<<7); err != nil {
			return 0, 0, err
		}
		v := uint16(f.TimeCorrection.Microseconds)&0x0fff | boolBit(f.TimeCorrection.Nack, 15)
		if err := putUint16(buffer, &pos, v); err != nil {
			return 0, 0, err
		}
	}
	if f.hasPayloadIEs() {
		if err := putUint16(buffer, &pos, ieHeaderTerm1<<7); err != nil {
			return 0, 0, err
		}
	} else if headerIEs && len(f.Payload) > 0 {
		if err := putUint16(buffer, &pos, ieHeaderTerm2<<7); err != nil {
			return 0, 0, err
		}
	}

	if f.Sync != nil {
		// MLME group with one nested short sub-IE
		if err := putUint16(buffer, &pos, (2+ASNLength+1)|ieGroupMLME<<11|1<<15); err != nil {
			return 0, 0, err
		}
		if err := putUint16(buffer, &pos, (ASNLength+1)|ieSubTSCHSync<<8); err != nil {
			return 0, 0, err
		}
		syncOffset = pos
		if err := f.Sync.ASN.encode(buffer, &pos); err != nil {
			return 0, 0, err
		}
		if len(buffer) < pos+1 {
			return 0, 0, ErrBufferTruncated
		}
		buffer[pos] = f.Sync.JoinPriority
		pos++
	}
	if len(f.SixP) > 0 {
		if 1+len(f.SixP) > 0x7ff {
			return 0, 0, ErrParameterOutOfRange
		}
		if err := putUint16(buffer, &pos, uint16(1+len(f.SixP))|ieGroupIETF<<11|1<<15); err != nil {
			return 0, 0, err
		}
		if len(buffer) < pos+1+len(f.SixP) {
			return 0, 0, ErrBufferTruncated
		}
		buffer[pos] = ieSubSixTop
		pos++
		pos += copy(buffer[pos:], f.SixP)
	}
	if f.hasPayloadIEs() && len(f.Payload) > 0 {
		if err := putUint16(buffer, &pos, ieGroupTermination<<11|1<<15); err != nil {
			return 0, 0, err
		}
	}

	if len(buffer) < pos+len(f.Payload)+FCSLength {
		return 0, 0, ErrBufferTruncated
	}
	pos += copy(buffer[pos:], f.Payload)
	fcs := FCS(buffer[:pos])
	if err := putUint16(buffer, &pos, fcs); err != nil {
		return 0, 0, err
	}
	return pos, syncOffset, nil
}

// Header holds the fields the slot engine needs from a received frame
type Header struct {
	Type              FrameType
	FramePending      bool
	AckRequest        bool
	SeqNum            uint8
	PANID             uint16
	Destination       LinkAddr
	Source            LinkAddr
	HasTimeCorrection bool
	TimeCorrection    TimeCorrection
	payloadIEs        bool
	end               int // offset after the header IEs
}

// ParseHeader verifies the FCS and decodes the MAC header and header IEs.
// It doesn't allocate.
func ParseHeader(data []byte, h *Header) error {
	if len(data) < 3+FCSLength {
		return ErrBufferTruncated
	}
	body := data[:len(data)-FCSLength]
	if FCS(body) != binary.LittleEndian.Uint16(data[len(body):]) {
		return ErrInvalidFCS
	}
	*h = Header{}
	pos := 0
	fcf, _ := getUint16(body, &pos)
	h.Type = FrameType(fcf & 0x07)
	if h.Type > FrameCommand {
		return ErrInvalidFrameType
	}
	if fcf&(1<<3) != 0 {
		// Secured frames are unwrapped before they get here
		return ErrInvalidSource
	}
	h.FramePending = fcf&(1<<4) != 0
	h.AckRequest = fcf&(1<<5) != 0
	panIDComp := fcf&(1<<6) != 0
	ieList := fcf&(1<<9) != 0
	dstMode := (fcf >> 10) & 0x03
	srcMode := (fcf >> 14) & 0x03
	h.SeqNum = body[pos]
	pos++

	var err error
	if dstMode != addrModeNone {
		if h.PANID, err = getUint16(body, &pos); err != nil {
			return err
		}
		if h.Destination, err = decodeAddr(dstMode, body, &pos); err != nil {
			return err
		}
	}
	if srcMode != addrModeNone {
		if !panIDComp || dstMode == addrModeNone {
			if h.PANID, err = getUint16(body, &pos); err != nil {
				return err
			}
		}
		if h.Source, err = decodeAddr(srcMode, body, &pos); err != nil {
			return err
		}
	}

	if ieList {
	headerLoop:
		for pos < len(body) {
			desc, err := getUint16(body, &pos)
			if err != nil {
				return err
			}
			if desc&(1<<15) != 0 {
				return ErrInvalidSource
			}
			length := int(desc & 0x7f)
			id := (desc >> 7) & 0xff
			if len(body) < pos+length {
				return ErrBufferTruncated
			}
			switch id {
			case ieHeaderTerm1:
				h.payloadIEs = true
				break headerLoop
			case ieHeaderTerm2:
				break headerLoop
			case ieTimeCorrection:
				if length != 2 {
					return ErrInvalidParameterFormat
				}
				v := binary.LittleEndian.Uint16(body[pos:])
				corr := v & 0x0fff
				if corr&0x0800 != 0 {
					corr |= 0xf000
				}
				h.HasTimeCorrection = true
				h.TimeCorrection = TimeCorrection{Microseconds: int16(corr), Nack: v&(1<<15) != 0}
			}
			pos += length
		}
	}
	h.end = pos
	return nil
}

// UnmarshalBinary decodes a frame and verifies the FCS
func (f *Frame) UnmarshalBinary(data []byte) error {
	h := Header{}
	if err := ParseHeader(data, &h); err != nil {
		return err
	}
	body := data[:len(data)-FCSLength]
	*f = Frame{
		Type:         h.Type,
		FramePending: h.FramePending,
		AckRequest:   h.AckRequest,
		SeqNum:       h.SeqNum,
		PANID:        h.PANID,
		Destination:  h.Destination,
		Source:       h.Source,
	}
	if h.HasTimeCorrection {
		tc := h.TimeCorrection
		f.TimeCorrection = &tc
	}
	pos := h.end
	if h.payloadIEs {
	payloadLoop:
		for pos < len(body) {
			desc, err := getUint16(body, &pos)
			if err != nil {
				return err
			}
			length := int(desc & 0x7ff)
			group := (desc >> 11) & 0x0f
			if len(body) < pos+length {
				return ErrBufferTruncated
			}
			content := body[pos : pos+length]
			pos += length
			switch group {
			case ieGroupTermination:
				break payloadLoop
			case ieGroupMLME:
				if err := f.decodeMLME(content); err != nil {
					return err
				}
			case ieGroupIETF:
				if len(content) > 0 && content[0] == ieSubSixTop {
					f.SixP = append([]byte{}, content[1:]...)
				}
			}
		}
	}
	if pos < len(body) {
		f.Payload = append([]byte{}, body[pos:]...)
	}
	return nil
}

func (f *Frame) decodeMLME(content []byte) error {
	pos := 0
	for pos < len(content) {
		desc, err := getUint16(content, &pos)
		if err != nil {
			return err
		}
		var length int
		var subID uint16
		if desc&(1<<15) == 0 {
			length = int(desc & 0xff)
			subID = (desc >> 8) & 0x7f
		} else {
			length = int(desc & 0x7ff)
			subID = (desc >> 11) & 0x0f
		}
		if len(content) < pos+length {
			return ErrBufferTruncated
		}
		if desc&(1<<15) == 0 && subID == ieSubTSCHSync {
			if length < ASNLength+1 {
				return ErrInvalidParameterFormat
			}
			s := SyncInfo{}
			p := pos
			if err := s.ASN.decode(content, &p); err != nil {
				return err
			}
			s.JoinPriority = content[p]
			f.Sync = &s
		}
		pos += length
	}
	return nil
}

// PacketDuration returns the air time in microseconds for a frame of the
// given length on the 250 kbps O-QPSK PHY: 32 us per byte including the
// length byte and the two-byte preamble/SFD overhead.
func PacketDuration(length int) int {
	return 32 * (length + 3)
}
