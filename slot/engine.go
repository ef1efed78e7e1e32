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
	"errors"
	"sync/atomic"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/ring"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/timesync"
)

//
// The slot engine runs every timeslot. Each step of the slot runs in a
// timer callback and ends by arming the timer for the next step, so there
// is exactly one deadline pending at any time. The last step of a slot arms
// the start of the next active slot. Nothing in here allocates, blocks or
// waits for the background domain: frames, transmission results and log
// records are copied into SPSC rings and the background domain drains them.
//

// State is the slot state machine state
type State uint32

// Slot states
const (
	Idle = State(iota)
	TxPrepare
	TxTransmit
	TxWaitAck
	TxDone
	RxListen
	RxReceive
	RxSendAck
	RxDone
	Sleep
	Scanning
	Stopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case TxPrepare:
		return "TxPrepare"
	case TxTransmit:
		return "TxTransmit"
	case TxWaitAck:
		return "TxWaitAck"
	case TxDone:
		return "TxDone"
	case RxListen:
		return "RxListen"
	case RxReceive:
		return "RxReceive"
	case RxSendAck:
		return "RxSendAck"
	case RxDone:
		return "RxDone"
	case Sleep:
		return "Sleep"
	case Scanning:
		return "Scanning"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

var (
	// ErrStopped is returned when the engine isn't running
	ErrStopped = errors.New("slot engine is stopped")
	// ErrASNRegression is returned when a slot is scheduled with an ASN that
	// isn't later than the current one
	ErrASNRegression = errors.New("slot number must increase")
)

// Supervisor is called by the slot engine when it stops because of a fatal
// radio or timer error. It runs in the timer context and must not block.
type Supervisor func(err error)

// Defaults
const (
	DefaultMaxSkipSlots = 1000
	DefaultRxRingSize   = 16
	DefaultTxRingSize   = 16
	DefaultLogRingSize  = 64
)

// Config is the slot engine configuration
type Config struct {
	Address      protocol.LinkAddr
	PANID        uint16
	Timing       Timing
	Hopping      schedule.HoppingSequence
	CCA          bool   // Clear channel assessment before transmitting in shared cells
	MaxSkipSlots uint32 // Upper bound on idle slots skipped in one go
	RxRingSize   int
	TxRingSize   int
	LogRingSize  int
	Supervisor   Supervisor
}

// DefaultConfig returns the default engine configuration for the address
func DefaultConfig(addr protocol.LinkAddr) Config {
	return Config{
		Address:      addr,
		PANID:        0xabcd,
		Timing:       DefaultTiming(),
		Hopping:      schedule.Sequence4x4,
		CCA:          true,
		MaxSkipSlots: DefaultMaxSkipSlots,
		RxRingSize:   DefaultRxRingSize,
		TxRingSize:   DefaultTxRingSize,
		LogRingSize:  DefaultLogRingSize,
	}
}

type commandKind uint8

const (
	cmdStart = commandKind(iota)
	cmdScan
	cmdStop
)

// command is a request from the background domain. It is picked up by the
// next timer callback.
type command struct {
	kind    commandKind
	asn     protocol.ASN
	start   rtimer.Ticks
	channel uint8
}

// slotContext is the state of the current slot. It is reset when the next
// slot is scheduled.
type slotContext struct {
	asn         protocol.ASN
	start       rtimer.Ticks
	cell        schedule.Cell
	hasCell     bool
	channel     uint8
	packet      *queue.Packet
	shared      bool
	sent        bool
	status      queue.TxStatus
	phase       int
	ackExpected rtimer.Ticks
	guard       int32
	rxStart     rtimer.Ticks
	rxLength    int
	ackLength   int
	drift       int32
	correction  int32
	nextASN     protocol.ASN
	nextStart   rtimer.Ticks
	version     uint64
}

// Engine is the TSCH slot engine
type Engine struct {
	config Config
	t      ticks
	timer  rtimer.Timer
	radio  radio.Driver
	table  *schedule.Table
	queue  *queue.Queue
	sync   *timesync.Tracker

	rx  *ring.SPSC[Received]
	tx  *ring.SPSC[TxResult]
	log *ring.SPSC[LogRecord]

	cmd      atomic.Pointer[command]
	state    State // timer context only
	current  atomic.Uint32
	asn      atomic.Uint64
	counters counters

	// Timer context only
	step          rtimer.Callback
	started       bool
	scanChannel   uint8
	slot          slotContext
	cells         []schedule.Cell
	header        protocol.Header
	rxBuf         [protocol.MaxFrameLength]byte
	ackBuf        [protocol.MaxFrameLength]byte
	ackFrame      protocol.Frame
	ackCorrection protocol.TimeCorrection
	record        Received
}

// New creates a stopped slot engine
func New(config Config, timer rtimer.Timer, driver radio.Driver, table *schedule.Table, q *queue.Queue, tracker *timesync.Tracker) (*Engine, error) {
	if err := config.Timing.Validate(); err != nil {
		return nil, err
	}
	if len(config.Hopping) == 0 {
		return nil, schedule.ErrUnknownSequence
	}
	if config.MaxSkipSlots == 0 {
		config.MaxSkipSlots = DefaultMaxSkipSlots
	}
	t := config.Timing.ticks(timer.Rate())
	if int64(config.MaxSkipSlots)*int64(t.slotLength) >= 1<<30 {
		return nil, ErrInvalidTiming
	}
	ret := &Engine{
		config: config,
		t:      t,
		timer:  timer,
		radio:  driver,
		table:  table,
		queue:  q,
		sync:   tracker,
		rx:     ring.New[Received](config.RxRingSize),
		tx:     ring.New[TxResult](config.TxRingSize),
		log:    ring.New[LogRecord](config.LogRingSize),
		cells:  make([]schedule.Cell, 0, table.Capacity()),
	}
	ret.ackFrame = protocol.Frame{
		Type:           protocol.FrameAck,
		PANID:          config.PANID,
		TimeCorrection: &ret.ackCorrection,
	}
	ret.step = ret.run
	ret.setState(Stopped)
	return ret, nil
}

// RxQueue returns the ring with received frames
func (e *Engine) RxQueue() *ring.SPSC[Received] {
	return e.rx
}

// TxQueue returns the ring with transmission results
func (e *Engine) TxQueue() *ring.SPSC[TxResult] {
	return e.tx
}

// LogQueue returns the ring with slot log records
func (e *Engine) LogQueue() *ring.SPSC[LogRecord] {
	return e.log
}

// State returns the current state
func (e *Engine) State() State {
	return State(e.current.Load())
}

// ASN returns the ASN of the current (or next) slot
func (e *Engine) ASN() protocol.ASN {
	return protocol.ASN(e.asn.Load())
}

// Stats returns a copy of the counters
func (e *Engine) Stats() Stats {
	ret := e.counters.snapshot()
	ret.HandoffDrops = e.rx.Dropped() + e.tx.Dropped()
	return ret
}

// SlotStartFor returns the start of the slot a frame with the timestamp was
// sent in
func (e *Engine) SlotStartFor(timestamp rtimer.Ticks) rtimer.Ticks {
	return timestamp.Add(-e.t.txOffset)
}

// SlotLength returns the slot length in ticks
func (e *Engine) SlotLength() int32 {
	return e.t.slotLength
}

// Start runs the slot with the ASN at start and keeps going from there. It
// is called from the background domain; the timer context picks up the
// request.
func (e *Engine) Start(asn protocol.ASN, start rtimer.Ticks) error {
	return e.request(&command{kind: cmdStart, asn: asn, start: start})
}

// StartFromBeacon starts the engine in step with the sender of an enhanced
// beacon with the ASN received at the timestamp.
func (e *Engine) StartFromBeacon(asn protocol.ASN, timestamp rtimer.Ticks) error {
	return e.Start(asn+1, e.SlotStartFor(timestamp).Add(e.t.slotLength))
}

// Scan listens for enhanced beacons on the channel. Beacons are handed to
// the background domain with Received.Scanning set.
func (e *Engine) Scan(channel uint8) error {
	if !radio.ValidChannel(channel) {
		return radio.ErrInvalidChannel
	}
	return e.request(&command{kind: cmdScan, channel: channel})
}

// Stop stops the engine and turns off the radio
func (e *Engine) Stop() error {
	return e.request(&command{kind: cmdStop})
}

// request hands the command to the timer context. If a running slot callback
// re-arms first, the command is applied at that deadline instead.
func (e *Engine) request(c *command) error {
	e.cmd.Store(c)
	return e.timer.Arm(e.timer.Now().Add(1), e.step)
}

func (e *Engine) setState(s State) {
	e.state = s
	e.current.Store(uint32(s))
}

// run is the timer callback
func (e *Engine) run(at rtimer.Ticks) {
	if c := e.cmd.Swap(nil); c != nil {
		e.apply(c)
		return
	}
	switch e.state {
	case Idle:
		e.startSlot(at)
	case TxPrepare:
		e.txPrepare(at)
	case TxTransmit:
		e.txTransmit(at)
	case TxWaitAck:
		e.txWaitAck(at)
	case TxDone:
		e.completeTx()
	case RxListen:
		e.rxListen(at)
	case RxReceive:
		e.rxReceive(at)
	case RxSendAck:
		e.rxSendAck(at)
	case RxDone:
		e.rxDone()
	case Scanning:
		e.scan(at)
	}
}

func (e *Engine) apply(c *command) {
	switch c.kind {
	case cmdStop:
		e.timer.Cancel()
		e.radio.Off()
		e.started = false
		e.setState(Stopped)
	case cmdScan:
		e.started = false
		e.scanChannel = c.channel
		if err := e.radio.SetChannel(c.channel); err != nil {
			e.fail(err)
			return
		}
		if err := e.radio.On(); err != nil {
			e.fail(err)
			return
		}
		e.arm(e.timer.Now().Add(e.t.scanPoll), Scanning)
	case cmdStart:
		if err := e.radio.Off(); errors.Is(err, radio.ErrRadioFault) {
			e.fail(err)
			return
		}
		e.schedule(c.start, c.asn, false)
		e.started = true
	}
}

// ScheduleNextSlot arms the timer for the slot with the ASN starting at
// target. If target isn't in the future the slot is lost: whole slots are
// added until it is, and every skipped slot is counted as dropped. The ASN
// never goes backwards.
func (e *Engine) ScheduleNextSlot(target rtimer.Ticks, asn protocol.ASN) error {
	if e.state == Stopped {
		return ErrStopped
	}
	if e.started && asn <= e.slot.asn {
		return ErrASNRegression
	}
	return e.schedule(target, asn, true)
}

func (e *Engine) schedule(target rtimer.Ticks, asn protocol.ASN, countDrops bool) error {
	slotLength := e.t.slotLength
	skipped := uint32(0)
	if late := rtimer.Diff(e.timer.Now(), target); late >= 0 {
		skip := uint32(late)/uint32(slotLength) + 1
		target = target.Add(int32(skip) * slotLength)
		asn += protocol.ASN(skip)
		skipped += skip
	}
	var err error
	// A retry only happens if the clock passed the target between Now and
	// Arm
	for i := 0; i < 3; i++ {
		if err = e.timer.Arm(target, e.step); err != rtimer.ErrTimeInPast {
			break
		}
		target = target.Add(slotLength)
		asn++
		skipped++
	}
	if countDrops && skipped > 0 {
		e.drop(skipped)
	}
	if err != nil {
		e.fail(err)
		return err
	}
	e.slot = slotContext{asn: asn, start: target}
	e.asn.Store(uint64(asn))
	e.setState(Idle)
	return nil
}

func (e *Engine) drop(n uint32) {
	e.counters.droppedSlots.Add(uint64(n))
	e.log.Put(LogRecord{Kind: LogDropped, ASN: e.slot.asn, Dropped: n})
}

// fail stops the engine after a fatal error
func (e *Engine) fail(err error) {
	e.timer.Cancel()
	e.radio.Off()
	e.started = false
	e.setState(Stopped)
	e.log.Put(LogRecord{Kind: LogFault, ASN: e.slot.asn})
	if e.config.Supervisor != nil {
		e.config.Supervisor(err)
	}
}

// arm moves to the state and arms its deadline. A deadline that has already
// passed ends the slot.
func (e *Engine) arm(at rtimer.Ticks, state State) {
	e.setState(state)
	err := e.timer.Arm(at, e.step)
	if err == nil {
		return
	}
	if err != rtimer.ErrTimeInPast {
		e.fail(err)
		return
	}
	if e.state == Scanning {
		e.arm(e.timer.Now().Add(e.t.scanPoll), Scanning)
		return
	}
	if e.slot.packet != nil && e.slot.sent {
		e.slot.status = queue.TxNoAck
		e.completeTx()
		return
	}
	if e.off() {
		e.finish()
	}
}

// check handles the result of a radio call. It returns false when the slot
// can't continue; the slot has then been ended.
func (e *Engine) check(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, radio.ErrRadioFault) {
		e.fail(err)
		return false
	}
	if e.slot.packet != nil {
		e.slot.status = queue.TxErr
		e.completeTx()
		return false
	}
	if e.off() {
		e.finish()
	}
	return false
}

func (e *Engine) off() bool {
	if err := e.radio.Off(); errors.Is(err, radio.ErrRadioFault) {
		e.fail(err)
		return false
	}
	return true
}

// planNext finds the next active slot
func (e *Engine) planNext() {
	s := &e.slot
	d := e.table.NextActive(s.asn)
	if d == 0 || d > uint64(e.config.MaxSkipSlots) {
		d = uint64(e.config.MaxSkipSlots)
	}
	s.nextASN = s.asn + protocol.ASN(d)
	s.nextStart = s.start.Add(int32(d) * e.t.slotLength)
	s.version = e.table.Version()
}

// finish ends the slot and schedules the next one
func (e *Engine) finish() {
	s := &e.slot
	if s.version != e.table.Version() {
		// The schedule changed during the slot
		e.planNext()
	}
	if s.hasCell && s.cell.Options.Has(schedule.OptionTX) && s.cell.IsShared() {
		e.queue.UpdateBackoff(s.cell.Neighbor)
	}
	next := s.nextStart.Add(s.correction)
	next = next.Add(e.sync.Compensate(rtimer.Diff(s.nextStart, s.start)))
	e.setState(Sleep)
	e.ScheduleNextSlot(next, s.nextASN)
}

func (e *Engine) startSlot(at rtimer.Ticks) {
	s := &e.slot
	now := e.timer.Now()
	if rtimer.Diff(now, s.start) > e.t.lateLimit {
		// The timer fired too late to run this slot
		e.drop(1)
		e.planNext()
		e.finish()
		return
	}
	cells := e.table.ActiveCells(s.asn, e.cells[:0])
	e.planNext()
	if len(cells) == 0 {
		e.finish()
		return
	}
	e.counters.slots.Add(1)
	e.selectCell(cells)
	if !s.hasCell {
		e.counters.sleepSlots.Add(1)
		e.finish()
		return
	}
	s.channel = e.config.Hopping.Channel(s.asn, s.cell.ChannelOffset)
	s.shared = s.cell.IsShared()

	if p := s.packet; p != nil {
		if p.SyncOffset != 0 {
			if err := protocol.UpdateBeacon(p.Frame, p.SyncOffset, s.asn, e.sync.JoinPriority()); err != nil {
				s.status = queue.TxErr
				e.completeTx()
				return
			}
		}
		if s.shared && e.config.CCA {
			e.arm(s.start.Add(e.t.ccaOffset), TxPrepare)
			return
		}
		e.arm(s.start.Add(e.t.txOffset), TxTransmit)
		return
	}
	if s.cell.Options.Has(schedule.OptionRX) {
		s.guard = e.sync.GuardExtension(now)
		listen := s.start.Add(e.t.txOffset - e.t.rxWait/2 - s.guard)
		if !rtimer.After(listen, now) {
			listen = now.Add(1)
		}
		e.arm(listen, RxListen)
		return
	}
	// TX cell without anything to send
	e.counters.sleepSlots.Add(1)
	e.finish()
}

// selectCell picks the cell for the slot. A TX cell with a packet wins,
// then the first RX cell in slotframe handle order. If neither exists the
// first cell is kept so the backoff windows are still updated.
func (e *Engine) selectCell(cells []schedule.Cell) {
	s := &e.slot
	for i := range cells {
		if !cells[i].Options.Has(schedule.OptionTX) {
			continue
		}
		if p := e.packetFor(&cells[i]); p != nil {
			s.cell = cells[i]
			s.hasCell = true
			s.packet = p
			return
		}
	}
	for i := range cells {
		if cells[i].Options.Has(schedule.OptionRX) {
			s.cell = cells[i]
			s.hasCell = true
			return
		}
	}
	s.cell = cells[0]
	s.hasCell = false
	if cells[0].Options.Has(schedule.OptionTX) && cells[0].IsShared() {
		e.queue.UpdateBackoff(cells[0].Neighbor)
	}
}

func (e *Engine) packetFor(c *schedule.Cell) *queue.Packet {
	shared := c.IsShared()
	if c.Type != schedule.LinkNormal && e.queue.BeaconPending() {
		return e.queue.PeekBeacon()
	}
	if c.Type == schedule.LinkAdvertisingOnly {
		return nil
	}
	if c.Neighbor.IsBroadcast() {
		if p := e.queue.Peek(protocol.BroadcastAddr, shared); p != nil {
			return p
		}
		if shared {
			return e.queue.PeekAny(shared)
		}
		return nil
	}
	return e.queue.Peek(c.Neighbor, shared)
}

func (e *Engine) txPrepare(at rtimer.Ticks) {
	s := &e.slot
	if !e.check(e.radio.SetChannel(s.channel)) || !e.check(e.radio.On()) {
		return
	}
	if !e.radio.ChannelClear() {
		s.status = queue.TxCollision
		e.completeTx()
		return
	}
	e.arm(s.start.Add(e.t.txOffset), TxTransmit)
}

func (e *Engine) txTransmit(at rtimer.Ticks) {
	s := &e.slot
	p := s.packet
	if !(s.shared && e.config.CCA) {
		if !e.check(e.radio.SetChannel(s.channel)) || !e.check(e.radio.On()) {
			return
		}
	}
	if !e.check(e.radio.Send(p.Frame)) {
		return
	}
	s.sent = true
	if p.SyncOffset != 0 {
		e.counters.beaconsSent.Add(1)
	}
	duration := e.t.duration(len(p.Frame))
	if p.AckRequest && p.SyncOffset == 0 && !p.Dest.IsBroadcast() {
		s.ackExpected = at.Add(duration + e.t.txAckDelay)
		s.phase = 0
		e.arm(at.Add(duration+e.t.rxAckDelay), TxWaitAck)
		return
	}
	s.status = queue.TxOK
	e.arm(at.Add(duration), TxDone)
}

func (e *Engine) txWaitAck(at rtimer.Ticks) {
	s := &e.slot
	if s.phase == 0 {
		// Listen for the ACK
		if !e.check(e.radio.On()) {
			return
		}
		s.phase = 1
		e.arm(s.ackExpected.Add(e.t.ackWait/2), TxWaitAck)
		return
	}
	if e.radio.Pending() {
		e.readAck(at)
		return
	}
	limit := s.ackExpected.Add(e.t.maxAck - e.t.ackWait/2)
	if e.radio.Receiving() && rtimer.Before(at, limit) {
		e.arm(at.Add(e.t.rxPoll), TxWaitAck)
		return
	}
	s.status = queue.TxNoAck
	e.completeTx()
}

func (e *Engine) readAck(at rtimer.Ticks) {
	s := &e.slot
	p := s.packet
	n, err := e.radio.Read(e.rxBuf[:])
	if !e.check(err) {
		return
	}
	s.status = queue.TxNoAck
	h := &e.header
	if n > 0 && protocol.ParseHeader(e.rxBuf[:n], h) == nil &&
		h.Type == protocol.FrameAck && h.SeqNum == p.SeqNum &&
		(h.Destination.IsNull() || h.Destination == e.config.Address) {
		s.status = queue.TxOK
		if h.HasTimeCorrection {
			if h.TimeCorrection.Nack {
				s.status = queue.TxNoAck
			}
			e.correct(p.Dest, e.t.rate.FromMicrosecondsSigned(int32(h.TimeCorrection.Microseconds)))
		} else {
			e.sync.Keepalive(p.Dest, s.start)
		}
	}
	e.completeTx()
}

// correct applies a time correction measured against the neighbor. Only
// corrections from the time source are used.
func (e *Engine) correct(source protocol.LinkAddr, correction int32) {
	if !e.sync.IsTimeSource(source) {
		return
	}
	s := &e.slot
	applied, err := e.sync.Update(source, correction, s.start)
	switch err {
	case nil:
		s.correction += applied
		e.counters.corrections.Add(1)
	case timesync.ErrClockAnomaly:
		e.counters.clockAnomalies.Add(1)
		e.log.Put(LogRecord{Kind: LogAnomaly, ASN: s.asn, Neighbor: source, Correction: correction})
	}
}

func (e *Engine) completeTx() {
	s := &e.slot
	p := s.packet
	if !e.off() {
		return
	}
	switch s.status {
	case queue.TxOK:
		e.counters.txOK.Add(1)
	case queue.TxNoAck:
		e.counters.txNoAck.Add(1)
	case queue.TxCollision:
		e.counters.txCollision.Add(1)
	default:
		e.counters.txErr.Add(1)
	}
	done := e.queue.Report(p, s.shared, s.status)
	e.tx.Put(TxResult{
		ASN:           s.asn,
		Packet:        p,
		Status:        s.status,
		Done:          done,
		Shared:        s.shared,
		Channel:       s.channel,
		Transmissions: p.Transmissions,
	})
	e.log.Put(LogRecord{
		Kind:          LogTx,
		ASN:           s.asn,
		Handle:        s.cell.Handle,
		Timeslot:      s.cell.Timeslot,
		ChannelOffset: s.cell.ChannelOffset,
		Channel:       s.channel,
		Neighbor:      p.Dest,
		Status:        s.status,
		Transmissions: p.Transmissions,
		Length:        uint8(len(p.Frame)),
		SeqNum:        p.SeqNum,
		Correction:    s.correction,
	})
	e.finish()
}

func (e *Engine) rxListen(at rtimer.Ticks) {
	s := &e.slot
	if !e.check(e.radio.SetChannel(s.channel)) || !e.check(e.radio.On()) {
		return
	}
	e.arm(s.start.Add(e.t.txOffset+e.t.rxWait/2+s.guard), RxReceive)
}

func (e *Engine) rxReceive(at rtimer.Ticks) {
	s := &e.slot
	if e.radio.Pending() {
		e.receive()
		return
	}
	limit := s.start.Add(e.t.txOffset + e.t.rxWait/2 + s.guard + e.t.maxTx)
	if e.radio.Receiving() && rtimer.Before(at, limit) {
		e.arm(at.Add(e.t.rxPoll), RxReceive)
		return
	}
	e.counters.rxEmpty.Add(1)
	if e.off() {
		e.finish()
	}
}

func (e *Engine) forUs(h *protocol.Header) bool {
	if h.Type == protocol.FrameAck || h.PANID != e.config.PANID {
		return false
	}
	return h.Destination.IsBroadcast() || h.Destination == e.config.Address
}

func (e *Engine) receive() {
	s := &e.slot
	n, err := e.radio.Read(e.rxBuf[:])
	if !e.check(err) {
		return
	}
	h := &e.header
	if n == 0 || protocol.ParseHeader(e.rxBuf[:n], h) != nil || !e.forUs(h) {
		e.counters.rxInvalid.Add(1)
		if e.off() {
			e.finish()
		}
		return
	}
	e.counters.rxOK.Add(1)
	s.rxStart = e.radio.RxTimestamp()
	s.rxLength = n
	s.drift = rtimer.Diff(s.rxStart, s.start.Add(e.t.txOffset))
	if !h.Source.IsNull() {
		e.correct(h.Source, s.drift)
	}
	if h.AckRequest && h.Destination == e.config.Address {
		us := e.t.rate.ToMicroseconds(-s.drift)
		if us > 2047 {
			us = 2047
		} else if us < -2048 {
			us = -2048
		}
		e.ackCorrection = protocol.TimeCorrection{Microseconds: int16(us)}
		e.ackFrame.SeqNum = h.SeqNum
		e.ackFrame.Destination = h.Source
		m, err := e.ackFrame.MarshalTo(e.ackBuf[:])
		if err == nil {
			s.ackLength = m
			e.arm(s.rxStart.Add(e.t.duration(n)+e.t.txAckDelay), RxSendAck)
			return
		}
	}
	e.rxDone()
}

func (e *Engine) rxSendAck(at rtimer.Ticks) {
	s := &e.slot
	if !e.check(e.radio.Send(e.ackBuf[:s.ackLength])) {
		return
	}
	e.counters.acksSent.Add(1)
	e.arm(at.Add(e.t.duration(s.ackLength)), RxDone)
}

func (e *Engine) rxDone() {
	s := &e.slot
	if !e.off() {
		return
	}
	r := &e.record
	r.ASN = s.asn
	r.Timestamp = s.rxStart
	r.SlotStart = s.start
	r.Channel = s.channel
	r.RSSI = e.radio.LastRSSI()
	r.Handle = s.cell.Handle
	r.Timeslot = s.cell.Timeslot
	r.Drift = s.drift
	r.Scanning = false
	r.Length = copy(r.Data[:], e.rxBuf[:s.rxLength])
	e.rx.Put(*r)
	e.log.Put(LogRecord{
		Kind:          LogRx,
		ASN:           s.asn,
		Handle:        s.cell.Handle,
		Timeslot:      s.cell.Timeslot,
		ChannelOffset: s.cell.ChannelOffset,
		Channel:       s.channel,
		Neighbor:      e.header.Source,
		Length:        uint8(s.rxLength),
		SeqNum:        e.header.SeqNum,
		Drift:         s.drift,
		Correction:    s.correction,
	})
	e.finish()
}

// scan polls the radio for enhanced beacons while the node isn't
// synchronized
func (e *Engine) scan(at rtimer.Ticks) {
	if e.radio.Pending() {
		n, err := e.radio.Read(e.rxBuf[:])
		if errors.Is(err, radio.ErrRadioFault) {
			e.fail(err)
			return
		}
		h := &e.header
		if n > 0 && protocol.ParseHeader(e.rxBuf[:n], h) == nil && h.Type == protocol.FrameBeacon {
			r := &e.record
			*r = Received{}
			r.Timestamp = e.radio.RxTimestamp()
			r.Channel = e.scanChannel
			r.RSSI = e.radio.LastRSSI()
			r.Scanning = true
			r.Length = copy(r.Data[:], e.rxBuf[:n])
			e.rx.Put(*r)
		}
	}
	e.arm(at.Add(e.t.scanPoll), Scanning)
}
