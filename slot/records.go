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
	"fmt"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

//
// Records handed from the slot engine to the background domain. They are
// plain values copied into the handoff rings so the slot engine never
// allocates and never shares a buffer with the consumer.
//

// Received is a frame received in a slot (or while scanning)
type Received struct {
	ASN       protocol.ASN
	Timestamp rtimer.Ticks // Start of frame, local time
	SlotStart rtimer.Ticks // Start of the slot the frame was received in
	Channel   uint8
	RSSI      int8
	Handle    uint16
	Timeslot  uint16
	Drift     int32 // Arrival error in ticks, actual - expected
	Scanning  bool
	Length    int
	Data      [protocol.MaxFrameLength]byte
}

// Frame returns the frame bytes
func (r *Received) Frame() []byte {
	return r.Data[:r.Length]
}

// TxResult is the outcome of one transmission attempt
type TxResult struct {
	ASN           protocol.ASN
	Packet        *queue.Packet
	Status        queue.TxStatus
	Done          bool // The packet has left the queue
	Shared        bool
	Channel       uint8
	Transmissions uint8
}

// LogKind is the type of slot log record
type LogKind uint8

// Slot log record types
const (
	LogTx = LogKind(iota)
	LogRx
	LogDropped
	LogAnomaly
	LogFault
)

// LogRecord is a slot log entry. The background domain formats and logs
// them; the slot engine only queues them.
type LogRecord struct {
	Kind          LogKind
	ASN           protocol.ASN
	Handle        uint16
	Timeslot      uint16
	ChannelOffset uint16
	Channel       uint8
	Neighbor      protocol.LinkAddr
	Status        queue.TxStatus
	Transmissions uint8
	Length        uint8
	SeqNum        uint8
	Drift         int32
	Correction    int32
	Dropped       uint32
}

// String formats the record
func (r LogRecord) String() string {
	switch r.Kind {
	case LogTx:
		return fmt.Sprintf("{asn %s link %d %d %d ch %2d} tx to %s, st %s %d, len %d, seq %d, dr %d",
			r.ASN, r.Handle, r.Timeslot, r.ChannelOffset, r.Channel, r.Neighbor, r.Status,
			r.Transmissions, r.Length, r.SeqNum, r.Correction)
	case LogRx:
		return fmt.Sprintf("{asn %s link %d %d %d ch %2d} rx from %s, len %d, seq %d, edr %d, dr %d",
			r.ASN, r.Handle, r.Timeslot, r.ChannelOffset, r.Channel, r.Neighbor, r.Length,
			r.SeqNum, r.Drift, r.Correction)
	case LogDropped:
		return fmt.Sprintf("{asn %s} dropped %d slot(s)", r.ASN, r.Dropped)
	case LogAnomaly:
		return fmt.Sprintf("{asn %s} suspected clock anomaly from %s, correction %d rejected",
			r.ASN, r.Neighbor, r.Correction)
	case LogFault:
		return fmt.Sprintf("{asn %s} radio fault", r.ASN)
	default:
		return fmt.Sprintf("{asn %s} unknown record %d", r.ASN, r.Kind)
	}
}
