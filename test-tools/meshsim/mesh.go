package main

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
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/processor"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/radio/sim"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/storage/memstore"
)

// Node is a simulated node with its own pipeline
type Node struct {
	Context  *server.Context
	Radio    *sim.Radio
	pipeline *processor.Pipeline
	events   <-chan events.Event
	lastData time.Duration
	sent     int
}

// Mesh is a set of nodes on a simulated radio medium. Every node has its
// own drifting clock on top of the shared virtual clock.
type Mesh struct {
	Config  Params
	Clock   *rtimer.VirtualClock
	Medium  *sim.Medium
	Nodes   []*Node
	Results Results
	output  func(format string, v ...interface{})
}

// Results is the summary of a run
type Results struct {
	Associations int
	Desyncs      int
	SixPOK       int
	SixPFailed   int
	DataSent     int
	DataReceived int
	Faults       int
}

func nodeAddress(i int) string {
	return fmt.Sprintf("00-12-4b-00-00-00-%02x-%02x", (i+1)>>8, (i+1)&0xff)
}

// NewMesh creates the nodes. Nothing runs until the mesh is started.
func NewMesh(config Params, output func(format string, v ...interface{})) (*Mesh, error) {
	rnd := rand.New(rand.NewSource(config.Seed))
	m := &Mesh{
		Config: config,
		Clock:  rtimer.NewVirtualClock(),
		output: output,
	}
	m.Medium = sim.NewMedium(m.Clock, config.Seed)
	m.Medium.SetDefaultPRR(config.PRR)

	for i := 0; i < config.NodeCount; i++ {
		cfg := server.NewMemoryConfig()
		cfg.Address = nodeAddress(i)
		cfg.Coordinator = i == 0
		cfg.EBPeriod = config.EBPeriod
		cfg.SixPCells = config.SixPCells
		cfg.SlotLog = config.SlotLog
		cfg.LogLevel = uint(config.LogLevel)

		drift := (rnd.Float64()*2 - 1) * config.MaxDriftPPM
		offset := rtimer.Ticks(rnd.Uint32())
		timer := m.Clock.NewTimer(rtimer.Rate1MHz, offset, drift)
		store := memstore.CreateMemoryStorage(0, 0)
		n := &Node{Radio: m.Medium.AddRadio(timer)}
		var err error
		if n.Context, err = server.NewContext(cfg, timer, n.Radio, m.Clock, &store, nil); err != nil {
			return nil, fmt.Errorf("unable to create node %s: %v", cfg.Address, err)
		}
		n.pipeline = processor.NewPipeline(n.Context)
		n.events = n.Context.Router.SubscribeAll()
		m.Nodes = append(m.Nodes, n)
	}
	if config.Topology == "line" {
		for i, a := range m.Nodes {
			for j, b := range m.Nodes {
				if i != j && (i-j > 1 || j-i > 1) {
					m.Medium.SetPRR(a.Radio, b.Radio, 0)
				}
			}
		}
	}
	return m, nil
}

// Start launches the node pipelines
func (m *Mesh) Start() error {
	for _, n := range m.Nodes {
		if err := n.pipeline.Start(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every node
func (m *Mesh) Stop() {
	for _, n := range m.Nodes {
		n.pipeline.Stop()
	}
}

// Run advances the virtual clock until the duration has elapsed. The node
// pipelines run on their own goroutines so the simulator yields between
// every step.
func (m *Mesh) Run() {
	for m.Clock.Elapsed() < m.Config.Duration {
		m.Clock.Advance(m.Config.Step)
		time.Sleep(100 * time.Microsecond)
		m.sendData()
		m.collect()
	}
	// Give the pipelines a chance to finish up
	time.Sleep(10 * time.Millisecond)
	m.collect()
}

// sendData sends a data frame to the time source of every synchronized node
func (m *Mesh) sendData() {
	if m.Config.DataInterval <= 0 {
		return
	}
	now := m.Clock.Elapsed()
	for _, n := range m.Nodes {
		source, ok := n.Context.Sync.TimeSource()
		if !ok || now-n.lastData < m.Config.DataInterval {
			continue
		}
		n.lastData = now
		n.sent++
		payload := []byte(fmt.Sprintf("%s #%d", n.Context.Address, n.sent))
		if err := n.Context.Sender.SendData(source, payload, nil); err == nil {
			m.Results.DataSent++
		}
	}
}

// collect prints and counts the events from every node
func (m *Mesh) collect() {
	for _, n := range m.Nodes {
		for {
			select {
			case ev := <-n.events:
				m.event(ev)
				continue
			default:
			}
			break
		}
	}
}

func (m *Mesh) event(ev events.Event) {
	t := m.Clock.Elapsed().Truncate(time.Millisecond)
	switch ev.Type {
	case events.Associated:
		m.Results.Associations++
		m.output("%10v %s associated with %s at ASN %d (%s)\n", t, ev.Node, ev.Peer, ev.ASN, ev.Data)
	case events.Desynchronized:
		m.Results.Desyncs++
		m.output("%10v %s lost synchronization: %s\n", t, ev.Node, ev.Data)
	case events.TimeSource:
		m.output("%10v %s switched time source to %s\n", t, ev.Node, ev.Peer)
	case events.SixP:
		tr := ev.Trans
		if tr.Error == "" {
			m.Results.SixPOK++
		} else {
			m.Results.SixPFailed++
		}
		role := "responder"
		if tr.Initiator {
			role = "initiator"
		}
		m.output("%10v %s 6P %s with %s as %s, seq %d: %s %v %s\n", t, ev.Node, tr.Command, ev.Peer, role, tr.SeqNum, tr.Code, tr.Cells, tr.Error)
	case events.Data:
		m.Results.DataReceived++
		m.output("%10v %s data from %s: %s\n", t, ev.Node, ev.Peer, ev.Data)
	case events.Fault:
		m.Results.Faults++
		m.output("%10v %s fault: %s\n", t, ev.Node, ev.Data)
	case events.SlotLog:
		m.output("%10v %s %s\n", t, ev.Node, ev.Data)
	}
}

// Synced returns the number of synchronized nodes
func (m *Mesh) Synced() int {
	ret := 0
	for _, n := range m.Nodes {
		if n.Context.Sync.IsSynced() {
			ret++
		}
	}
	return ret
}

func dedicatedCells(n *Node) int {
	count := 0
	for _, sf := range n.Context.Table.Snapshot() {
		for _, c := range sf.Cells {
			if !c.IsShared() && !c.Neighbor.IsBroadcast() && c.Options.Has(schedule.OptionTX) {
				count++
			}
		}
	}
	return count
}

// PrintSummary prints a line per node and the totals
func (m *Mesh) PrintSummary() {
	m.output("\n%-24s %-6s %-4s %-24s %-5s %-8s %-8s %-8s %-8s\n",
		"Node", "Synced", "Prio", "Time source", "Cells", "Slots", "TX ok", "No ACK", "RX ok")
	for _, n := range m.Nodes {
		source := "-"
		if addr, ok := n.Context.Sync.TimeSource(); ok {
			source = addr.String()
		}
		if n.Context.Sync.IsCoordinator() {
			source = "(coordinator)"
		}
		s := n.Context.Engine.Stats()
		m.output("%-24s %-6t %-4d %-24s %-5d %-8d %-8d %-8d %-8d\n",
			n.Context.Address, n.Context.Sync.IsSynced(), n.Context.Sync.JoinPriority(), source,
			dedicatedCells(n), s.Slots, s.TxOK, s.TxNoAck, s.RxOK)
	}
	r := m.Results
	m.output("\n%d of %d nodes synchronized. %d association(s), %d desync(s), %d fault(s)\n",
		m.Synced(), len(m.Nodes), r.Associations, r.Desyncs, r.Faults)
	m.output("6P: %d completed, %d failed. Data: %d sent, %d received. Medium: %d frames, %d collisions\n",
		r.SixPOK, r.SixPFailed, r.DataSent, r.DataReceived, m.Medium.Frames(), m.Medium.Collisions())
}

// Node returns the node with the address
func (m *Mesh) Node(addr protocol.LinkAddr) *Node {
	for _, n := range m.Nodes {
		if n.Context.Address == addr {
			return n
		}
	}
	return nil
}
