package events

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
	"github.com/ExploratoryEngineering/tsch/sixp"
)

// EventType is the type of event
type EventType string

// Event types
const (
	Associated     = EventType("Associated")
	Desynchronized = EventType("Desynchronized")
	TimeSource     = EventType("TimeSource")
	SixP           = EventType("6P")
	Fault          = EventType("Fault")
	SlotLog        = EventType("SlotLog")
	Data           = EventType("Data")
	KeepAlive      = EventType("KeepAlive")
	Inactive       = EventType("Inactive")
)

// Cell is a 6P cell in an event
type Cell struct {
	SlotOffset    uint16 `json:"slotOffset"`
	ChannelOffset uint16 `json:"channelOffset"`
}

// Transaction is a completed (or failed) 6P transaction
type Transaction struct {
	Command   string `json:"command"`
	SeqNum    uint8  `json:"seqNum"`
	Initiator bool   `json:"initiator"`
	State     string `json:"state"`
	Code      string `json:"code"`
	Cells     []Cell `json:"cells,omitempty"`
	Count     uint16 `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is an out-of-band event from a node. Events are sent to the event
// router which distributes them to the websocket and MQTT listeners.
type Event struct {
	Type  EventType    `json:"event"`
	Node  string       `json:"node,omitempty"`
	Peer  string       `json:"peer,omitempty"`
	ASN   uint64       `json:"asn,omitempty"`
	Data  string       `json:"data,omitempty"`
	Trans *Transaction `json:"transaction,omitempty"`
}

// NewInactive creates a new inactive event
func NewInactive() Event {
	return Event{Type: Inactive}
}

// NewKeepAlive creates a new keepalive event
func NewKeepAlive() Event {
	return Event{Type: KeepAlive}
}

// NewAssociated is sent when a node joins the network. The peer is the
// time source.
func NewAssociated(node, timeSource protocol.LinkAddr, asn protocol.ASN, joinPriority uint8) Event {
	return Event{
		Type: Associated,
		Node: node.String(),
		Peer: timeSource.String(),
		ASN:  uint64(asn),
		Data: fmt.Sprintf("join priority %d", joinPriority),
	}
}

// NewDesynchronized is sent when a node loses synchronization
func NewDesynchronized(node protocol.LinkAddr, asn protocol.ASN, reason string) Event {
	return Event{Type: Desynchronized, Node: node.String(), ASN: uint64(asn), Data: reason}
}

// NewTimeSource is sent when a node switches to a new time source
func NewTimeSource(node, timeSource protocol.LinkAddr) Event {
	return Event{Type: TimeSource, Node: node.String(), Peer: timeSource.String()}
}

// NewSixP creates an event for a 6P result
func NewSixP(node protocol.LinkAddr, r sixp.Result) Event {
	t := &Transaction{
		Command:   r.Command.String(),
		SeqNum:    r.SeqNum,
		Initiator: r.Initiator,
		State:     r.State.String(),
		Code:      r.Code.String(),
		Count:     r.Count,
	}
	for _, c := range r.Cells {
		t.Cells = append(t.Cells, Cell{SlotOffset: c.SlotOffset, ChannelOffset: c.ChannelOffset})
	}
	if r.Err != nil {
		t.Error = r.Err.Error()
	}
	return Event{Type: SixP, Node: node.String(), Peer: r.Peer.String(), Trans: t}
}

// NewFault is sent when the slot engine reports a fault
func NewFault(node protocol.LinkAddr, err error) Event {
	return Event{Type: Fault, Node: node.String(), Data: err.Error()}
}

// NewSlotLog wraps a formatted slot log record
func NewSlotLog(node protocol.LinkAddr, asn protocol.ASN, record string) Event {
	return Event{Type: SlotLog, Node: node.String(), ASN: uint64(asn), Data: record}
}

// NewData is sent for data frames received by a node. The payload is hex
// encoded.
func NewData(node, source protocol.LinkAddr, asn protocol.ASN, payload string) Event {
	return Event{Type: Data, Node: node.String(), Peer: source.String(), ASN: uint64(asn), Data: payload}
}
