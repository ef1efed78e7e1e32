package server

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

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/slot"
	"github.com/ExploratoryEngineering/tsch/stats"
	"github.com/ExploratoryEngineering/tsch/storage"
	"github.com/ExploratoryEngineering/tsch/timesync"
)

// DefaultRouterChannelLength is the buffer size for event subscribers
const DefaultRouterChannelLength = 32

// Context holds everything a node needs. It is created once and passed to
// the processing pipeline; nothing in the node lives in package globals
// apart from the monitoring counters.
type Context struct {
	Config   *Configuration
	Address  protocol.LinkAddr
	Storage  *storage.Storage
	Table    *schedule.Table
	Queue    *queue.Queue
	Sync     *timesync.Tracker
	Selector *timesync.Selector
	Engine   *slot.Engine
	SixP     *sixp.Engine
	SF       *sixp.SimpleSF
	Stats    *stats.Collector
	Sender   *FrameSender
	Security FrameSecurity
	Router   *EventRouter
	Timer    rtimer.Timer
	Clock    rtimer.AfterFuncer // Timers for the background domain
	Faults   chan error         // Fatal slot engine errors
}

// NewContext creates the node context. The schedule and the 6P peer state
// are restored from the storage if the node has been running before;
// otherwise the node starts out with the minimal schedule.
func NewContext(config *Configuration, timer rtimer.Timer, driver radio.Driver, clock rtimer.AfterFuncer, store *storage.Storage, router *EventRouter) (*Context, error) {
	addr := config.LinkAddr()
	ret := &Context{
		Config:   config,
		Address:  addr,
		Storage:  store,
		Table:    schedule.NewTable(config.MaxSlotframes, config.MaxLinks),
		Sync:     timesync.NewTracker(config.SyncConfig()),
		Selector: timesync.NewSelector(timesync.DefaultMinEBCount),
		Stats:    stats.NewCollector(config.MaxNeighbors),
		Router:   router,
		Security: NoSecurity{},
		Timer:    timer,
		Clock:    clock,
		Faults:   make(chan error, 1),
	}
	if ret.Router == nil {
		ret.Router = NewEventRouter(DefaultRouterChannelLength)
	}
	ret.Queue = queue.New(queue.Config{
		PerNeighbor:  config.QueueLength,
		MaxNeighbors: config.MaxNeighbors,
		MinBE:        queue.DefaultMinBE,
		MaxBE:        queue.DefaultMaxBE,
		Seed:         int64(addr.ToUint64()),
	})
	ret.Sender = NewFrameSender(addr, uint16(config.PANID), ret.Queue)

	if err := ret.restoreSchedule(); err != nil {
		return nil, err
	}

	slotConfig := config.SlotConfig()
	slotConfig.Supervisor = func(err error) {
		// Runs in the timer context; the pipeline picks it up
		select {
		case ret.Faults <- err:
		default:
		}
	}
	var err error
	ret.Engine, err = slot.New(slotConfig, timer, driver, ret.Table, ret.Queue, ret.Sync)
	if err != nil {
		return nil, fmt.Errorf("unable to create slot engine: %v", err)
	}

	ret.SF = sixp.NewSimpleSF(sixp.DefaultSimpleHandle, sixp.DefaultSimpleLength,
		uint16(len(slotConfig.Hopping)), config.SixPTimeout, int64(addr.ToUint64()))
	if err := ret.SF.Install(ret.Table); err != nil {
		return nil, fmt.Errorf("unable to install scheduling function slotframe: %v", err)
	}
	ret.SixP = sixp.New(sixp.DefaultConfig(), ret.Table, ret.Sender, ret.Queue, clock)
	ret.SixP.Register(ret.SF)

	peers, err := store.Peers.List(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to read 6P peers: %v", err)
	}
	ret.SixP.RestorePeers(peers)
	ret.restoreTxLinks()
	monitoring.ScheduledLinks.Set(float64(ret.Table.Links()))
	return ret, nil
}

func (c *Context) restoreSchedule() error {
	frames, err := c.Storage.Schedule.Get(c.Address)
	switch err {
	case nil:
		if err := c.Table.Restore(frames); err == nil {
			logging.Info("Restored schedule with %d slotframe(s) and %d link(s)", len(frames), c.Table.Links())
			return nil
		}
		logging.Warning("Stored schedule for %s is invalid: %v. Using the minimal schedule", c.Address, err)
	case storage.ErrNotFound:
		logging.Debug("No stored schedule for %s. Using the minimal schedule", c.Address)
	default:
		return fmt.Errorf("unable to read schedule: %v", err)
	}
	return schedule.InitMinimal(c.Table, uint16(c.Config.SlotframeLength))
}

// restoreTxLinks tells the queue about dedicated TX cells in a restored
// schedule
func (c *Context) restoreTxLinks() {
	counts := make(map[protocol.LinkAddr]int)
	for _, sf := range c.Table.Snapshot() {
		for _, cell := range sf.Cells {
			if cell.Neighbor.IsBroadcast() || cell.IsShared() || !cell.Options.Has(schedule.OptionTX) {
				continue
			}
			counts[cell.Neighbor]++
		}
	}
	for addr, n := range counts {
		if err := c.Queue.SetTxLinks(addr, n); err != nil {
			logging.Warning("Unable to set TX links for %s: %v", addr, err)
		}
	}
}

// SetSecurity installs a link layer security transform for both
// directions. It must be called before the pipeline is started.
func (c *Context) SetSecurity(security FrameSecurity) {
	c.Security = security
	c.Sender.SetSecurity(security)
}

// Persist stores the current schedule and the 6P peer state
func (c *Context) Persist() error {
	var err error
	monitoring.Stopwatch(monitoring.TimePersist, func() {
		if err = c.Storage.Schedule.Put(c.Address, c.Table.Snapshot()); err != nil {
			return
		}
		for _, p := range c.SixP.Peers() {
			if err = c.Storage.Peers.Put(c.Address, p); err != nil {
				return
			}
		}
	})
	if err != nil {
		monitoring.StorageFailed.Increment()
		return err
	}
	monitoring.ScheduledLinks.Set(float64(c.Table.Links()))
	return nil
}

// Reset drops the negotiated schedule and goes back to the minimal
// schedule. The 6P peer state is kept; the next transaction with a peer
// that still has cells will be answered with a generation error.
func (c *Context) Reset() error {
	if err := schedule.InitMinimal(c.Table, uint16(c.Config.SlotframeLength)); err != nil {
		return err
	}
	if err := c.SF.Install(c.Table); err != nil {
		return err
	}
	for _, n := range c.Queue.Neighbors() {
		if err := c.Queue.SetTxLinks(n.Addr, 0); err != nil {
			logging.Warning("Unable to clear TX links for %s: %v", n.Addr, err)
		}
	}
	return c.Persist()
}
