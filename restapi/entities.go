package restapi

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
	"fmt"
	"sort"
	"strings"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/stats"
)

// apiNode is the node status
type apiNode struct {
	Address      string  `json:"address"`
	PANID        uint    `json:"panId"`
	Coordinator  bool    `json:"coordinator"`
	Synced       bool    `json:"synced"`
	State        string  `json:"state"`
	ASN          uint64  `json:"asn"`
	JoinPriority uint8   `json:"joinPriority"`
	TimeSource   string  `json:"timeSource,omitempty"`
	DriftPPM     float64 `json:"driftPpm"`
	Links        int     `json:"links"`
	Queued       int     `json:"queued"`
}

func newNodeFromContext(c *server.Context) apiNode {
	ret := apiNode{
		Address:      c.Address.String(),
		PANID:        c.Config.PANID,
		Coordinator:  c.Sync.IsCoordinator(),
		Synced:       c.Sync.IsSynced(),
		State:        c.Engine.State().String(),
		ASN:          uint64(c.Engine.ASN()),
		JoinPriority: c.Sync.JoinPriority(),
		DriftPPM:     c.Sync.DriftPPM(),
		Links:        c.Table.Links(),
		Queued:       c.Queue.Total(),
	}
	if src, ok := c.Sync.TimeSource(); ok {
		ret.TimeSource = src.String()
	}
	return ret
}

type apiCell struct {
	Timeslot      uint16 `json:"timeslot"`
	ChannelOffset uint16 `json:"channelOffset"`
	Options       string `json:"options"`
	Advertising   bool   `json:"advertising"`
	Neighbor      string `json:"neighbor"`
}

type apiSlotframe struct {
	Handle uint16    `json:"handle"`
	Length uint16    `json:"length"`
	Cells  []apiCell `json:"cells"`
}

func newSlotframe(sf schedule.Slotframe) apiSlotframe {
	ret := apiSlotframe{Handle: sf.Handle, Length: sf.Length, Cells: make([]apiCell, 0, len(sf.Cells))}
	for _, c := range sf.Cells {
		ret.Cells = append(ret.Cells, apiCell{
			Timeslot:      c.Timeslot,
			ChannelOffset: c.ChannelOffset,
			Options:       c.Options.String(),
			Advertising:   c.Type != schedule.LinkNormal,
			Neighbor:      c.Neighbor.String(),
		})
	}
	return ret
}

// apiNeighbor merges the queue and the link statistics for a neighbor.
// Channels is only set when a single neighbor is requested.
type apiNeighbor struct {
	Address  string               `json:"address"`
	Queued   int                  `json:"queued"`
	TxLinks  int                  `json:"txLinks"`
	Channels []stats.ChannelStats `json:"channels,omitempty"`
}

func newNeighborList(c *server.Context) []apiNeighbor {
	seen := make(map[protocol.LinkAddr]*apiNeighbor)
	for _, n := range c.Queue.Neighbors() {
		seen[n.Addr] = &apiNeighbor{Address: n.Addr.String(), Queued: n.Len(), TxLinks: n.TxLinks()}
	}
	for _, addr := range c.Stats.Neighbors() {
		if _, ok := seen[addr]; !ok {
			seen[addr] = &apiNeighbor{Address: addr.String()}
		}
	}
	ret := make([]apiNeighbor, 0, len(seen))
	for _, n := range seen {
		ret = append(ret, *n)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Address < ret[j].Address })
	return ret
}

type apiPeer struct {
	Address    string `json:"address"`
	State      string `json:"state"`
	NextSeq    uint8  `json:"nextSeq"`
	Generation uint8  `json:"generation"`
}

func newPeerList(e *sixp.Engine) []apiPeer {
	peers := e.Peers()
	ret := make([]apiPeer, 0, len(peers))
	for _, p := range peers {
		ret = append(ret, apiPeer{
			Address:    p.Addr.String(),
			State:      e.State(p.Addr).String(),
			NextSeq:    p.NextSeq,
			Generation: p.Gen,
		})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Address < ret[j].Address })
	return ret
}

// apiRequest is a 6P request posted by an operator. Cells are only used
// for DELETE and RELOCATE.
type apiRequest struct {
	Command  string       `json:"command"`
	Options  string       `json:"options"`
	NumCells int          `json:"numCells"`
	Cells    []apiCellRef `json:"cells"`
	Metadata uint16       `json:"metadata"`
}

type apiCellRef struct {
	SlotOffset    uint16 `json:"slotOffset"`
	ChannelOffset uint16 `json:"channelOffset"`
}

var errInvalidCommand = errors.New("unknown 6P command")

func parseCommand(s string) (protocol.SixPCommand, error) {
	for c := protocol.CmdAdd; c <= protocol.CmdClear; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, errInvalidCommand
}

func parseOptions(s string) (protocol.CellOptions, error) {
	if s == "" {
		return protocol.CellOptionTX, nil
	}
	var ret protocol.CellOptions
	for _, o := range strings.Split(s, "|") {
		switch strings.ToUpper(strings.TrimSpace(o)) {
		case "TX":
			ret |= protocol.CellOptionTX
		case "RX":
			ret |= protocol.CellOptionRX
		case "SHARED":
			ret |= protocol.CellOptionShared
		default:
			return 0, fmt.Errorf("unknown cell option %q", o)
		}
	}
	return ret, nil
}

// toRequest converts the posted request to an engine request
func (a apiRequest) toRequest() (sixp.Request, error) {
	cmd, err := parseCommand(a.Command)
	if err != nil {
		return sixp.Request{}, err
	}
	options, err := parseOptions(a.Options)
	if err != nil {
		return sixp.Request{}, err
	}
	cells := make([]protocol.SixPCell, 0, len(a.Cells))
	for _, c := range a.Cells {
		cells = append(cells, protocol.SixPCell{SlotOffset: c.SlotOffset, ChannelOffset: c.ChannelOffset})
	}
	ret := sixp.Request{Command: cmd, Options: options, Metadata: a.Metadata, NumCells: a.NumCells}
	switch cmd {
	case protocol.CmdAdd:
		if ret.NumCells <= 0 {
			ret.NumCells = 1
		}
		ret.Cells = cells
	case protocol.CmdDelete:
		if len(cells) == 0 {
			return sixp.Request{}, errors.New("DELETE needs a cell list")
		}
		ret.Cells = cells
		ret.NumCells = len(cells)
	case protocol.CmdRelocate:
		if len(cells) == 0 {
			return sixp.Request{}, errors.New("RELOCATE needs a cell list")
		}
		ret.Relocate = cells
		ret.NumCells = len(cells)
	case protocol.CmdList:
		ret.MaxCells = sixp.DefaultMaxListCells
	}
	return ret, nil
}
