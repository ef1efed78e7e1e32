package processor

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
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/stats"
)

// DefaultHousekeepingInterval is how often the synchronization state is
// checked
const DefaultHousekeepingInterval = time.Second

type tick uint8

const (
	tickBeacon = tick(iota)
	tickKeepalive
	tickHousekeeping
	tickDecay
)

// Scheduler is the process that owns the synchronization control of the
// node. It reads beacons from the MAC processor, sends enhanced beacons
// and keepalives, detects loss of synchronization and starts 6P
// transactions with the time source. Everything that changes the state of
// the slot engine from the background domain goes through the scheduler.
type Scheduler struct {
	notifier     <-chan server.Beacon // Input channel; beacons from the MAC processor
	context      *server.Context      // Node context
	ticks        chan tick
	timers       map[tick]rtimer.Stopper
	housekeeping time.Duration
	requested    bool // 6P ADD to the time source in progress
	done         chan struct{}
}

// NewScheduler creates a new scheduler.
func NewScheduler(context *server.Context, beaconNotifier <-chan server.Beacon) *Scheduler {
	return &Scheduler{
		notifier:     beaconNotifier,
		context:      context,
		ticks:        make(chan tick, 8),
		timers:       make(map[tick]rtimer.Stopper),
		housekeeping: DefaultHousekeepingInterval,
		done:         make(chan struct{}),
	}
}

// SetHousekeepingInterval adjusts the housekeeping interval. This is only
// for testing.
func (s *Scheduler) SetHousekeepingInterval(d time.Duration) {
	s.housekeeping = d
}

// Done returns a channel that is closed when the scheduler terminates
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// every arms a timer for the tick. The timer callbacks only post to the
// tick channel so they never block the clock.
func (s *Scheduler) every(t tick, d time.Duration) {
	if d <= 0 {
		return
	}
	s.timers[t] = s.context.Clock.AfterFunc(d, func() {
		select {
		case s.ticks <- t:
		default:
		}
	})
}

func (s *Scheduler) period(t tick) time.Duration {
	switch t {
	case tickBeacon:
		return s.context.Config.EBPeriod
	case tickKeepalive:
		return s.context.Config.KeepalivePeriod
	case tickHousekeeping:
		return s.housekeeping
	default:
		return stats.DefaultDecayInterval
	}
}

// Join starts the network if the node is the coordinator or starts
// scanning for beacons if it isn't.
func (s *Scheduler) Join() error {
	ctx := s.context
	if ctx.Config.Coordinator {
		now := ctx.Timer.Now()
		if err := ctx.Sync.BecomeCoordinator(now); err != nil {
			return err
		}
		monitoring.JoinPriority.Set(0)
		logging.Info("Node %s is the PAN coordinator", ctx.Address)
		return ctx.Engine.Start(0, now.Add(ctx.Engine.SlotLength()))
	}
	return s.scan()
}

func (s *Scheduler) scanChannel() uint8 {
	if s.context.Config.ScanChannel != 0 {
		return uint8(s.context.Config.ScanChannel)
	}
	seq, err := schedule.SequenceByName(s.context.Config.Hopping)
	if err != nil || len(seq) == 0 {
		seq = schedule.Sequence4x4
	}
	return seq[0]
}

func (s *Scheduler) scan() error {
	ch := s.scanChannel()
	logging.Info("Node %s scanning for beacons on channel %d", s.context.Address, ch)
	return s.context.Engine.Scan(ch)
}

// Start launches the scheduler. When the notifier channel is closed it will
// stop and the timers are cancelled.
func (s *Scheduler) Start() {
	defer close(s.done)
	for _, t := range []tick{tickBeacon, tickKeepalive, tickHousekeeping, tickDecay} {
		s.every(t, s.period(t))
	}
	defer func() {
		for _, timer := range s.timers {
			timer.Stop()
		}
	}()
	for {
		select {
		case b, ok := <-s.notifier:
			if !ok {
				logging.Debug("Beacon notifier for scheduler closed. Terminating")
				return
			}
			s.beacon(b)

		case t := <-s.ticks:
			switch t {
			case tickBeacon:
				s.sendBeacon()
			case tickKeepalive:
				s.sendKeepalive()
			case tickHousekeeping:
				s.checkSync()
			case tickDecay:
				s.context.Stats.Decay()
			}
			s.every(t, s.period(t))

		case r := <-s.context.SixP.Results():
			s.sixPResult(r)

		case err := <-s.context.Faults:
			s.fault(err)
		}
	}
}

// beacon handles an enhanced beacon
func (s *Scheduler) beacon(b server.Beacon) {
	ctx := s.context
	if b.Scanning {
		if ctx.Sync.IsSynced() {
			return
		}
		now := ctx.Timer.Now()
		if err := ctx.Sync.Associate(b.Source, b.JoinPriority, now); err != nil {
			logging.Info("Not associating with %s (join priority %d): %v", b.Source, b.JoinPriority, err)
			return
		}
		if err := ctx.Engine.StartFromBeacon(b.ASN, b.Timestamp); err != nil {
			logging.Error("Unable to start slot engine: %v", err)
			ctx.Sync.Reset()
			return
		}
		ctx.Selector.Observe(b.Source, b.JoinPriority)
		prio := ctx.Sync.JoinPriority()
		logging.Info("Node %s associated with %s at ASN %s, join priority %d", ctx.Address, b.Source, b.ASN, prio)
		monitoring.Associations.Increment()
		monitoring.JoinPriority.Set(float64(prio))
		ctx.Router.Publish(events.NewAssociated(ctx.Address, b.Source, b.ASN, prio))
		s.requested = false
		return
	}
	ctx.Selector.Observe(b.Source, b.JoinPriority)
	if ctx.Sync.IsTimeSource(b.Source) {
		ctx.Sync.Keepalive(b.Source, b.Timestamp)
	}
}

func (s *Scheduler) sendBeacon() {
	ctx := s.context
	if !ctx.Sync.IsSynced() {
		return
	}
	if ctx.Queue.BeaconPending() {
		logging.Debug("Previous beacon not sent yet")
		return
	}
	if err := ctx.Sender.SendBeacon(); err != nil {
		logging.Warning("Unable to queue enhanced beacon: %v", err)
		return
	}
	monitoring.EBSent.Increment()
}

func (s *Scheduler) sendKeepalive() {
	ctx := s.context
	if ctx.Sync.IsCoordinator() {
		return
	}
	source, ok := ctx.Sync.TimeSource()
	if !ok {
		return
	}
	err := ctx.Sender.SendKeepalive(source, func(ok bool) {
		if !ok {
			logging.Debug("Keepalive to %s not acknowledged", source)
		}
	})
	if err != nil {
		logging.Warning("Unable to queue keepalive to %s: %v", source, err)
		return
	}
	monitoring.KeepaliveSent.Increment()
}

// desyncTimeout is the number of ticks without synchronization before the
// node gives up on the network
func (s *Scheduler) desyncTimeout() int32 {
	us := 2 * s.context.Config.MaxKeepalive.Microseconds()
	return int32(s.context.Config.Rate().FromMicroseconds(uint32(us)))
}

// checkSync runs the periodic synchronization housekeeping
func (s *Scheduler) checkSync() {
	ctx := s.context
	monitoring.Neighbors.Set(float64(ctx.Selector.Len()))
	monitoring.QueuedPackets.Set(float64(ctx.Queue.Total()))
	if !ctx.Sync.IsSynced() || ctx.Sync.IsCoordinator() {
		return
	}
	now := ctx.Timer.Now()
	if since := ctx.Sync.SinceSync(now); since > s.desyncTimeout() {
		s.desynchronize(fmt.Sprintf("no synchronization for %d us", ctx.Config.Rate().ToMicroseconds(since)))
		return
	}
	if addr, prio, ok := ctx.Selector.ShouldSwitch(ctx.Sync); ok {
		old, _ := ctx.Sync.TimeSource()
		if err := ctx.Sync.SetTimeSource(addr, prio); err != nil {
			logging.Warning("Unable to switch time source to %s: %v", addr, err)
		} else {
			logging.Info("Time source changed from %s to %s (join priority %d)", old, addr, prio)
			monitoring.SourceSwitches.Increment()
			monitoring.JoinPriority.Set(float64(ctx.Sync.JoinPriority()))
			ctx.Router.Publish(events.NewTimeSource(ctx.Address, addr))
			s.requested = false
		}
	}
	s.requestCells()
}

// requestCells asks the time source for dedicated cells once the node has
// joined
func (s *Scheduler) requestCells() {
	ctx := s.context
	if s.requested || ctx.Config.SixPCells <= 0 {
		return
	}
	source, ok := ctx.Sync.TimeSource()
	if !ok || s.dedicatedCells(source) > 0 || ctx.SixP.State(source) != sixp.Idle {
		return
	}
	req := sixp.Request{
		Command:  protocol.CmdAdd,
		Options:  protocol.CellOptionTX,
		NumCells: ctx.Config.SixPCells,
	}
	if err := ctx.SixP.Submit(context.Background(), source, req); err != nil {
		logging.Info("Unable to request %d cell(s) from %s: %v", req.NumCells, source, err)
		return
	}
	s.requested = true
	monitoring.SixPInitiated.Increment()
}

// dedicatedCells counts the dedicated TX cells to the neighbor
func (s *Scheduler) dedicatedCells(addr protocol.LinkAddr) int {
	count := 0
	for _, sf := range s.context.Table.Snapshot() {
		for _, c := range sf.Cells {
			if c.Neighbor == addr && c.Options.Has(schedule.OptionTX) && !c.IsShared() {
				count++
			}
		}
	}
	return count
}

func (s *Scheduler) desynchronize(reason string) {
	ctx := s.context
	asn := ctx.Engine.ASN()
	logging.Warning("Node %s lost synchronization at ASN %s: %s", ctx.Address, asn, reason)
	if source, ok := ctx.Sync.TimeSource(); ok {
		ctx.Selector.Remove(source)
	}
	ctx.Sync.Reset()
	ctx.Stats.Disassociated()
	monitoring.Desyncs.Increment()
	monitoring.JoinPriority.Set(float64(ctx.Sync.JoinPriority()))
	ctx.Router.Publish(events.NewDesynchronized(ctx.Address, asn, reason))
	s.requested = false
	if err := s.scan(); err != nil {
		logging.Error("Unable to start scanning: %v", err)
	}
}

func (s *Scheduler) sixPResult(r sixp.Result) {
	ctx := s.context
	switch {
	case r.Err == nil:
		monitoring.SixPCompleted.Increment()
	case r.Err == sixp.ErrTimeout:
		monitoring.SixPTimeouts.Increment()
	default:
		monitoring.SixPFailed.Increment()
	}
	if r.Err != nil {
		logging.Info("6P %s with %s (seq %d) failed: %v", r.Command, r.Peer, r.SeqNum, r.Err)
	} else {
		logging.Debug("6P %s with %s (seq %d) completed: %s, %d cell(s)", r.Command, r.Peer, r.SeqNum, r.Code, len(r.Cells))
	}
	if r.Initiator && r.Command == protocol.CmdAdd {
		// Try again at the next housekeeping if the cells weren't added
		s.requested = false
	}
	if err := ctx.Persist(); err != nil {
		logging.Warning("Unable to store schedule: %v", err)
	}
	ctx.Router.Publish(events.NewSixP(ctx.Address, r))

	if r.Err == sixp.ErrGeneration || r.Err == sixp.ErrSequence {
		// The schedules are out of step; start over with the peer
		if err := ctx.SixP.Initiate(context.Background(), r.Peer, protocol.CmdClear, nil); err != nil {
			logging.Warning("Unable to clear schedule with %s: %v", r.Peer, err)
			return
		}
		monitoring.SixPInitiated.Increment()
	}
}

// fault handles a fatal slot engine error. The schedule is reset and the
// node starts over.
func (s *Scheduler) fault(err error) {
	ctx := s.context
	logging.Error("Slot engine fault: %v", err)
	monitoring.RadioFaults.Increment()
	ctx.Router.Publish(events.NewFault(ctx.Address, err))
	if resetErr := ctx.Reset(); resetErr != nil {
		logging.Warning("Unable to reset schedule: %v", resetErr)
	}
	ctx.Sync.Reset()
	ctx.Stats.Disassociated()
	s.requested = false
	if err := s.Join(); err != nil {
		logging.Error("Unable to restart the node: %v", err)
	}
}
