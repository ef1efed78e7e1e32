package schedule

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
	"strings"

	"github.com/ExploratoryEngineering/tsch/protocol"
)

// LinkOptions is the link option bitmap for a cell
type LinkOptions uint8

// Link options
const (
	OptionTX          = LinkOptions(1)
	OptionRX          = LinkOptions(2)
	OptionShared      = LinkOptions(4)
	OptionTimeKeeping = LinkOptions(8)
)

// Has returns true if all of the options in o are set
func (l LinkOptions) Has(o LinkOptions) bool {
	return l&o == o
}

// String returns the options as a |-separated list
func (l LinkOptions) String() string {
	var parts []string
	names := []string{"TX", "RX", "SHARED", "TK"}
	for i, name := range names {
		if l&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// LinkType is the 802.15.4e link type. AdvertisingOnly links are used for
// enhanced beacons only.
type LinkType uint8

// Link types
const (
	LinkNormal = LinkType(iota)
	LinkAdvertising
	LinkAdvertisingOnly
)

// Cell is one (timeslot, channel offset) entry in a slotframe
type Cell struct {
	Handle        uint16 // Slotframe handle
	Timeslot      uint16
	ChannelOffset uint16
	Options       LinkOptions
	Type          LinkType
	Neighbor      protocol.LinkAddr // BroadcastAddr for broadcast cells
}

// IsShared returns true for contention based cells
func (c Cell) IsShared() bool {
	return c.Options.Has(OptionShared)
}

// String returns a short description of the cell for logs
func (c Cell) String() string {
	return fmt.Sprintf("[sf=%d ts=%d ch=%d %s %s]", c.Handle, c.Timeslot, c.ChannelOffset, c.Options, c.Neighbor)
}

// Slotframe is a repeating cycle of timeslots and the cells scheduled in it.
// The cells are sorted on timeslot.
type Slotframe struct {
	Handle uint16
	Length uint16
	Cells  []Cell
}

// Timeslot returns the timeslot within the slotframe for the ASN
func (s *Slotframe) Timeslot(asn protocol.ASN) uint16 {
	return asn.Mod(s.Length)
}
