package sixp

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
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
)

// State is the transaction state for a peer
type State uint8

// Transaction states. A peer is Idle when there's no transaction.
const (
	Idle = State(iota)
	RequestSent
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case RequestSent:
		return "RequestSent"
	case TimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// maxSeqNum is the highest sequence number before it wraps to 0
const maxSeqNum = 0x0f

func nextSeqNum(seq uint8) uint8 {
	if seq >= maxSeqNum {
		return 0
	}
	return seq + 1
}

// nextGen advances the schedule generation lollipop. 0 is only used after
// a reset; the counter then cycles 1, 2, 3, 1...
func nextGen(gen uint8) uint8 {
	if gen >= 3 {
		return 1
	}
	return gen + 1
}

// changesSchedule returns true for the commands that are covered by the
// generation counter
func changesSchedule(cmd protocol.SixPCommand) bool {
	return cmd == protocol.CmdAdd || cmd == protocol.CmdDelete || cmd == protocol.CmdRelocate
}

// transaction is an outstanding request initiated by this node
type transaction struct {
	id       uint64
	seq      uint8
	sf       SchedulingFunction
	req      Request
	timer    rtimer.Stopper
	reserved []uint16 // Timeslots held until the response arrives
}

// cachedResponse is the response to the last resolved request from the
// peer. A retransmitted request is answered from here.
type cachedResponse struct {
	valid    bool
	seq      uint8
	request  []byte
	response []byte
}

type peer struct {
	addr    protocol.LinkAddr
	state   State
	nextSeq uint8
	gen     uint8
	tx      *transaction
	cache   cachedResponse
}

// PeerState is the persistent part of the per-peer state
type PeerState struct {
	Addr    protocol.LinkAddr
	NextSeq uint8
	Gen     uint8
}

// reverse flips TX and RX so the options match the receiving side
func reverse(o protocol.CellOptions) protocol.CellOptions {
	ret := o & protocol.CellOptionShared
	if o&protocol.CellOptionTX != 0 {
		ret |= protocol.CellOptionRX
	}
	if o&protocol.CellOptionRX != 0 {
		ret |= protocol.CellOptionTX
	}
	return ret
}

// linkOptions converts 6P cell options to schedule link options. The bit
// positions are the same.
func linkOptions(o protocol.CellOptions) schedule.LinkOptions {
	return schedule.LinkOptions(o & (protocol.CellOptionTX | protocol.CellOptionRX | protocol.CellOptionShared))
}

// matches returns true if the cell has the options. Zero matches any cell.
func matches(c schedule.Cell, o protocol.CellOptions) bool {
	if o == 0 {
		return true
	}
	want := linkOptions(o)
	return c.Options&(schedule.OptionTX|schedule.OptionRX|schedule.OptionShared) == want
}
