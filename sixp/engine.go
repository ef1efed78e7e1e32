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
	"context"
	"sync"
	"sync/atomic"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
)

// Sender hands encoded 6P messages to the MAC. done is called once with
// the outcome of the transmission, and never from inside Send. A nil done
// means the caller doesn't care. An error means nothing was queued.
type Sender interface {
	Send(peer protocol.LinkAddr, msg []byte, done func(ok bool)) error
}

// LinkCounter is told how many dedicated TX cells a neighbor has after
// every committed change. The frame queue implements this.
type LinkCounter interface {
	SetTxLinks(addr protocol.LinkAddr, count int) error
}

// Default engine parameters
const (
	DefaultMaxPeers        = 32
	DefaultEventQueueSize  = 64
	DefaultResultQueueSize = 32
	DefaultMaxListCells    = 16
)

// Config is the 6P engine configuration
type Config struct {
	MaxPeers        int
	EventQueueSize  int
	ResultQueueSize int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		MaxPeers:        DefaultMaxPeers,
		EventQueueSize:  DefaultEventQueueSize,
		ResultQueueSize: DefaultResultQueueSize,
	}
}

// Request is a request to initiate. SFID 0 selects the first registered
// scheduling function.
type Request struct {
	Command  protocol.SixPCommand
	SFID     uint8
	Metadata uint16
	Options  protocol.CellOptions // As seen by this node
	NumCells int
	Cells    []protocol.SixPCell // Candidates for ADD and RELOCATE, cells for DELETE
	Relocate []protocol.SixPCell
	Offset   uint16
	MaxCells uint16
	Payload  []byte
}

// Result is the outcome of a transaction. Responder results are reported
// for requests that were executed.
type Result struct {
	Peer      protocol.LinkAddr
	Command   protocol.SixPCommand
	SeqNum    uint8
	Initiator bool
	State     State // Idle after a response, TimedOut after a timeout
	Code      protocol.SixPReturnCode
	Cells     []protocol.SixPCell
	Count     uint16
	Err       error
}

// Stats holds the engine counters
type Stats struct {
	Initiated    uint64
	Completed    uint64
	Timeouts     uint64
	Requests     uint64
	Duplicates   uint64
	Rejected     uint64
	SendFailures uint64
	Malformed    uint64
	ResultDrops  uint64
}

type counters struct {
	initiated, completed, timeouts    atomic.Uint64
	requests, duplicates, rejected    atomic.Uint64
	sendFailures, malformed, resDrops atomic.Uint64
}

type eventKind uint8

const (
	evInitiate = eventKind(iota)
	evInput
	evTimeout
	evSent
)

type event struct {
	kind  eventKind
	peer  protocol.LinkAddr
	req   Request
	data  []byte
	id    uint64
	ok    bool
	reply chan error
}

type slotKey struct {
	handle   uint16
	timeslot uint16
}

// Engine runs 6P transactions. All state is owned by the event loop in
// Run; the public methods post events to it.
type Engine struct {
	config     Config
	table      *schedule.Table
	sender     Sender
	links      LinkCounter
	clock      rtimer.AfterFuncer
	mutex      *sync.Mutex
	sfs        map[uint8]SchedulingFunction
	defaultSF  SchedulingFunction
	peers      map[protocol.LinkAddr]*peer
	reserved   map[slotKey]protocol.LinkAddr
	events     chan event
	results    chan Result
	stopped    chan struct{}
	stopOnce   sync.Once
	nextID     uint64
	counters   counters
	beforeSend func() error // Runs between the table change and the send
}

// New creates the engine. links may be nil.
func New(config Config, table *schedule.Table, sender Sender, links LinkCounter, clock rtimer.AfterFuncer) *Engine {
	if config.MaxPeers <= 0 {
		config.MaxPeers = DefaultMaxPeers
	}
	if config.EventQueueSize <= 0 {
		config.EventQueueSize = DefaultEventQueueSize
	}
	if config.ResultQueueSize <= 0 {
		config.ResultQueueSize = DefaultResultQueueSize
	}
	return &Engine{
		config:   config,
		table:    table,
		sender:   sender,
		links:    links,
		clock:    clock,
		mutex:    &sync.Mutex{},
		sfs:      make(map[uint8]SchedulingFunction),
		peers:    make(map[protocol.LinkAddr]*peer),
		reserved: make(map[slotKey]protocol.LinkAddr),
		events:   make(chan event, config.EventQueueSize),
		results:  make(chan Result, config.ResultQueueSize),
		stopped:  make(chan struct{}),
	}
}

// Register adds a scheduling function. The first one registered is the
// default.
func (e *Engine) Register(sf SchedulingFunction) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.sfs[sf.SFID()] = sf
	if e.defaultSF == nil {
		e.defaultSF = sf
	}
}

// Results returns the channel transaction results are delivered on
func (e *Engine) Results() <-chan Result {
	return e.results
}

// Run is the event loop. It returns when the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer e.stopOnce.Do(func() { close(e.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) post(ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.stopped:
		return false
	}
}

// Initiate starts a transaction with the peer using the default
// scheduling function. Cells are the proposed cells for ADD (the
// scheduling function picks them if empty), the cells to delete for DELETE
// and the cells to move for RELOCATE. New cells are TX cells towards the
// peer.
func (e *Engine) Initiate(ctx context.Context, peer protocol.LinkAddr, cmd protocol.SixPCommand, cells []protocol.SixPCell) error {
	req := Request{Command: cmd, Options: protocol.CellOptionTX}
	switch cmd {
	case protocol.CmdAdd:
		req.Cells = cells
		req.NumCells = len(cells)
		if req.NumCells == 0 {
			req.NumCells = 1
		}
	case protocol.CmdDelete:
		req.Cells = cells
		req.NumCells = len(cells)
	case protocol.CmdRelocate:
		req.Relocate = cells
		req.NumCells = len(cells)
	case protocol.CmdList:
		req.MaxCells = DefaultMaxListCells
	}
	return e.Submit(ctx, peer, req)
}

// Submit starts a transaction for an arbitrary request. It returns when
// the request is queued for transmission; the outcome is reported on the
// results channel.
func (e *Engine) Submit(ctx context.Context, peer protocol.LinkAddr, req Request) error {
	reply := make(chan error, 1)
	ev := event{kind: evInitiate, peer: peer, req: req, reply: reply}
	select {
	case e.events <- ev:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Input hands a received 6P message to the engine
func (e *Engine) Input(from protocol.LinkAddr, data []byte) {
	e.post(event{kind: evInput, peer: from, data: data})
}

// State returns the transaction state for the peer
func (e *Engine) State(peer protocol.LinkAddr) State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if p, ok := e.peers[peer]; ok {
		return p.state
	}
	return Idle
}

// Peers returns the sequence number and generation for every peer
func (e *Engine) Peers() []PeerState {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	ret := make([]PeerState, 0, len(e.peers))
	for _, p := range e.peers {
		ret = append(ret, PeerState{Addr: p.addr, NextSeq: p.nextSeq, Gen: p.gen})
	}
	return ret
}

// RestorePeers loads peer state saved with Peers. It should be called
// before Run.
func (e *Engine) RestorePeers(states []PeerState) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, s := range states {
		if len(e.peers) >= e.config.MaxPeers {
			return
		}
		e.peers[s.Addr] = &peer{addr: s.Addr, nextSeq: s.NextSeq & maxSeqNum, gen: s.Gen & 0x03}
	}
}

// Stats returns a copy of the counters
func (e *Engine) Stats() Stats {
	return Stats{
		Initiated:    e.counters.initiated.Load(),
		Completed:    e.counters.completed.Load(),
		Timeouts:     e.counters.timeouts.Load(),
		Requests:     e.counters.requests.Load(),
		Duplicates:   e.counters.duplicates.Load(),
		Rejected:     e.counters.rejected.Load(),
		SendFailures: e.counters.sendFailures.Load(),
		Malformed:    e.counters.malformed.Load(),
		ResultDrops:  e.counters.resDrops.Load(),
	}
}

func (e *Engine) handle(ev event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	switch ev.kind {
	case evInitiate:
		ev.reply <- e.initiate(ev.peer, ev.req)
	case evInput:
		e.input(ev.peer, ev.data)
	case evTimeout:
		if p := e.peers[ev.peer]; p != nil && p.tx != nil && p.tx.id == ev.id {
			logging.Info("6P transaction %d with %s timed out", p.tx.seq, p.addr)
			e.expire(p, ErrTimeout)
		}
	case evSent:
		if p := e.peers[ev.peer]; p != nil && p.tx != nil && p.tx.id == ev.id && !ev.ok {
			logging.Info("6P request %d to %s was not delivered", p.tx.seq, p.addr)
			e.counters.sendFailures.Add(1)
			e.expire(p, ErrSendFailed)
		}
	}
}

func (e *Engine) lookupSF(sfid uint8) SchedulingFunction {
	if sfid == 0 && e.defaultSF != nil {
		return e.defaultSF
	}
	return e.sfs[sfid]
}

// peer returns the peer, creating it if there's room. created is true for
// new peers.
func (e *Engine) peer(addr protocol.LinkAddr) (p *peer, created bool, err error) {
	if p, ok := e.peers[addr]; ok {
		return p, false, nil
	}
	if len(e.peers) >= e.config.MaxPeers {
		return nil, false, ErrPeerTable
	}
	p = &peer{addr: addr}
	e.peers[addr] = p
	return p, true, nil
}

func (e *Engine) taken(handle uint16) func(uint16) bool {
	return func(ts uint16) bool {
		_, ok := e.reserved[slotKey{handle, ts}]
		return ok
	}
}

func (e *Engine) reserve(p *peer, tx *transaction, cells []protocol.SixPCell) {
	for _, c := range cells {
		e.reserved[slotKey{tx.sf.Handle(), c.SlotOffset}] = p.addr
		tx.reserved = append(tx.reserved, c.SlotOffset)
	}
}

func (e *Engine) release(tx *transaction) {
	for _, ts := range tx.reserved {
		delete(e.reserved, slotKey{tx.sf.Handle(), ts})
	}
	tx.reserved = nil
}

// freeLocally checks that the proposed cells can be used by this node
func (e *Engine) freeLocally(sf SchedulingFunction, cells []protocol.SixPCell) error {
	frame, err := e.table.Slotframe(sf.Handle())
	if err != nil {
		return err
	}
	seen := make(map[uint16]bool)
	for _, c := range cells {
		if c.SlotOffset >= frame.Length {
			return schedule.ErrInvalidCell
		}
		if seen[c.SlotOffset] || e.taken(sf.Handle())(c.SlotOffset) ||
			len(e.table.Resolve(sf.Handle(), c.SlotOffset)) > 0 {
			return schedule.ErrDuplicateCell
		}
		seen[c.SlotOffset] = true
	}
	return nil
}

// ownCells checks that every cell is scheduled with the peer
func (e *Engine) ownCells(sf SchedulingFunction, addr protocol.LinkAddr, options protocol.CellOptions, cells []protocol.SixPCell) error {
	for _, c := range cells {
		if findCell(e.table.Resolve(sf.Handle(), c.SlotOffset), addr, c, options) < 0 {
			return schedule.ErrNotFound
		}
	}
	return nil
}

func findCell(cells []schedule.Cell, addr protocol.LinkAddr, c protocol.SixPCell, options protocol.CellOptions) int {
	for i, existing := range cells {
		if existing.Neighbor == addr && existing.ChannelOffset == c.ChannelOffset && matches(existing, options) {
			return i
		}
	}
	return -1
}

func (e *Engine) initiate(addr protocol.LinkAddr, req Request) error {
	sf := e.lookupSF(req.SFID)
	if sf == nil {
		return ErrUnknownSF
	}
	p, created, err := e.peer(addr)
	if err != nil {
		return err
	}
	if p.tx != nil {
		return ErrBusy
	}
	// A peer that was only created here must not linger if the request
	// is refused
	fail := func(err error) error {
		if created {
			delete(e.peers, addr)
		}
		return err
	}

	body := protocol.SixPBody{
		Metadata:    req.Metadata,
		CellOptions: req.Options,
		Offset:      req.Offset,
		MaxNumCells: req.MaxCells,
		Payload:     req.Payload,
	}
	var reserve []protocol.SixPCell
	switch req.Command {
	case protocol.CmdAdd, protocol.CmdRelocate:
		n := req.NumCells
		if req.Command == protocol.CmdRelocate {
			if len(req.Relocate) == 0 {
				return fail(ErrInvalidRequest)
			}
			if err := e.ownCells(sf, addr, req.Options, req.Relocate); err != nil {
				return fail(err)
			}
			n = len(req.Relocate)
			body.RelocationList = req.Relocate
		}
		if n <= 0 || n > 0xff {
			return fail(ErrInvalidRequest)
		}
		if e.table.Links()+n > e.table.Capacity() {
			return fail(schedule.ErrCapacityExceeded)
		}
		cells := req.Cells
		if len(cells) == 0 {
			frame, err := e.table.Slotframe(sf.Handle())
			if err != nil {
				return fail(err)
			}
			if cells = sf.Candidates(frame, n, e.taken(sf.Handle())); len(cells) == 0 {
				return fail(schedule.ErrCapacityExceeded)
			}
		} else if len(cells) < n {
			return fail(ErrInvalidRequest)
		}
		if err := e.freeLocally(sf, cells); err != nil {
			return fail(err)
		}
		body.NumCells = uint8(n)
		body.CellList = cells
		reserve = cells
	case protocol.CmdDelete:
		if len(req.Cells) == 0 || len(req.Cells) > 0xff {
			return fail(ErrInvalidRequest)
		}
		if err := e.ownCells(sf, addr, req.Options, req.Cells); err != nil {
			return fail(err)
		}
		body.NumCells = uint8(len(req.Cells))
		body.CellList = req.Cells
	case protocol.CmdCount, protocol.CmdList, protocol.CmdClear, protocol.CmdSignal:
	default:
		return fail(ErrInvalidRequest)
	}

	msg := protocol.NewSixPRequest(req.Command, sf.SFID(), p.nextSeq, body)
	msg.Gen = p.gen
	data, err := msg.MarshalBinary()
	if err != nil {
		logging.Warning("Unable to encode 6P request to %s: %v", addr, err)
		return fail(ErrInvalidRequest)
	}

	e.nextID++
	tx := &transaction{id: e.nextID, seq: p.nextSeq, sf: sf, req: req}
	tx.req.Cells = body.CellList
	id := tx.id
	if err := e.sender.Send(addr, data, func(ok bool) {
		e.post(event{kind: evSent, peer: addr, id: id, ok: ok})
	}); err != nil {
		e.counters.sendFailures.Add(1)
		logging.Info("Unable to queue 6P request to %s: %v", addr, err)
		return fail(ErrSendFailed)
	}
	e.reserve(p, tx, reserve)
	tx.timer = e.clock.AfterFunc(sf.Timeout(), func() {
		e.post(event{kind: evTimeout, peer: addr, id: id})
	})
	p.tx = tx
	p.state = RequestSent
	e.counters.initiated.Add(1)
	logging.Debug("Sent %s to %s", msg, addr)
	return nil
}

// expire abandons the outstanding transaction. Reservations are released
// and nothing is left in the schedule.
func (e *Engine) expire(p *peer, reason error) {
	tx := p.tx
	if tx.timer != nil {
		tx.timer.Stop()
	}
	p.state = TimedOut
	e.release(tx)
	e.counters.timeouts.Add(1)
	if tx.req.Command == protocol.CmdClear {
		// The peer clears its side whether or not the response arrives
		e.clearLocal(p, tx.sf)
	}
	e.deliver(Result{
		Peer:      p.addr,
		Command:   tx.req.Command,
		SeqNum:    tx.seq,
		Initiator: true,
		State:     TimedOut,
		Code:      protocol.RCErr,
		Err:       reason,
	})
	p.tx = nil
	p.state = Idle
}

func (e *Engine) clearLocal(p *peer, sf SchedulingFunction) {
	err := e.table.Apply(func(b *schedule.Batch) error {
		for _, c := range b.CellsFor(sf.Handle(), p.addr, 0) {
			if _, err := b.RemoveCell(c.Handle, c.Timeslot, c.Neighbor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logging.Warning("Unable to clear cells for %s: %v", p.addr, err)
	}
	p.nextSeq = 0
	p.gen = 0
	e.updateLinks(p.addr)
}

// updateLinks reports the number of dedicated TX cells for the neighbor
func (e *Engine) updateLinks(addr protocol.LinkAddr) {
	if e.links == nil {
		return
	}
	count := 0
	for _, sf := range e.table.Snapshot() {
		for _, c := range sf.Cells {
			if c.Neighbor == addr && c.Options.Has(schedule.OptionTX) && !c.IsShared() {
				count++
			}
		}
	}
	if err := e.links.SetTxLinks(addr, count); err != nil {
		logging.Warning("Unable to update TX links for %s: %v", addr, err)
	}
}

func (e *Engine) deliver(r Result) {
	if r.Err == nil {
		e.counters.completed.Add(1)
	}
	select {
	case e.results <- r:
	default:
		e.counters.resDrops.Add(1)
	}
}

func (e *Engine) input(from protocol.LinkAddr, data []byte) {
	msg := protocol.SixPMessage{}
	if err := msg.UnmarshalBinary(data); err != nil {
		e.counters.malformed.Add(1)
		if err == protocol.ErrInvalidVersion && msg.Type == protocol.SixPRequest {
			e.sendError(from, protocol.RCErrVersion, msg.SFID, msg.SeqNum, 0)
			return
		}
		logging.Warning("Dropping malformed 6P message from %s: %v", from, err)
		if p := e.peers[from]; p != nil && p.tx != nil {
			e.expire(p, ErrTimeout)
		}
		return
	}
	switch msg.Type {
	case protocol.SixPRequest:
		sf := e.sfs[msg.SFID]
		if sf == nil {
			logging.Info("%s from %s for unknown SF", msg, from)
			e.sendError(from, protocol.RCErrSFID, msg.SFID, msg.SeqNum, 0)
			return
		}
		e.respond(from, &msg, data, sf)
	case protocol.SixPResponse:
		e.response(from, &msg)
	default:
		logging.Debug("Ignoring %s from %s", msg, from)
	}
}

func (e *Engine) response(from protocol.LinkAddr, msg *protocol.SixPMessage) {
	p := e.peers[from]
	if p == nil || p.tx == nil {
		logging.Info("Unexpected %s from %s", msg, from)
		return
	}
	if msg.SeqNum != p.tx.seq && msg.ReturnCode() != protocol.RCErrSeqNum {
		logging.Warning("Sequence number mismatch from %s (got %d, expected %d)", from, msg.SeqNum, p.tx.seq)
		e.expire(p, ErrTimeout)
		return
	}
	tx := p.tx
	cmd := tx.req.Command
	body, err := msg.ResponseBody(cmd)
	if err != nil {
		e.counters.malformed.Add(1)
		logging.Warning("Malformed %s response from %s: %v", cmd, from, err)
		e.expire(p, ErrTimeout)
		return
	}
	if tx.timer != nil {
		tx.timer.Stop()
	}
	e.release(tx)

	rc := msg.ReturnCode()
	res := Result{
		Peer:      from,
		Command:   cmd,
		SeqNum:    tx.seq,
		Initiator: true,
		State:     Idle,
		Code:      rc,
		Cells:     body.CellList,
		Count:     body.TotalNumCells,
		Err:       resultError(cmd, rc),
	}
	if rc.IsSuccess() && changesSchedule(cmd) {
		cells, err := e.commitLocal(p, tx, body.CellList)
		res.Cells = cells
		res.Err = err
		if err == nil {
			p.gen = nextGen(p.gen)
		}
	}
	switch {
	case cmd == protocol.CmdClear:
		e.clearLocal(p, tx.sf)
	case rc != protocol.RCErrSeqNum:
		p.nextSeq = nextSeqNum(p.nextSeq)
	}
	p.tx = nil
	p.state = Idle
	e.updateLinks(from)
	logging.Debug("%s from %s completes %s", msg, from, cmd)
	e.deliver(res)
}

// commitLocal applies a successful response to the local schedule. Cells
// the peer picked that weren't proposed are ignored.
func (e *Engine) commitLocal(p *peer, tx *transaction, cells []protocol.SixPCell) ([]protocol.SixPCell, error) {
	handle := tx.sf.Handle()
	proposed := func(c protocol.SixPCell) bool {
		for _, candidate := range tx.req.Cells {
			if candidate == c {
				return true
			}
		}
		return false
	}
	var accepted []protocol.SixPCell
	err := e.table.Apply(func(b *schedule.Batch) error {
		accepted = accepted[:0]
		switch tx.req.Command {
		case protocol.CmdAdd:
			for _, c := range cells {
				if !proposed(c) || len(accepted) >= tx.req.NumCells {
					continue
				}
				if err := b.AddCell(newCell(handle, c, tx.req.Options, p.addr)); err != nil {
					return err
				}
				accepted = append(accepted, c)
			}
		case protocol.CmdDelete:
			for _, c := range cells {
				if err := removeCell(b, handle, c, tx.req.Options, p.addr); err != nil {
					return err
				}
				accepted = append(accepted, c)
			}
		case protocol.CmdRelocate:
			for i, c := range cells {
				if i >= len(tx.req.Relocate) || !proposed(c) {
					break
				}
				if err := removeCell(b, handle, tx.req.Relocate[i], tx.req.Options, p.addr); err != nil {
					return err
				}
				if err := b.AddCell(newCell(handle, c, tx.req.Options, p.addr)); err != nil {
					return err
				}
				accepted = append(accepted, c)
			}
		}
		return nil
	})
	if err != nil {
		logging.Warning("Unable to apply %s from %s locally: %v", tx.req.Command, p.addr, err)
		return nil, err
	}
	return accepted, nil
}

func newCell(handle uint16, c protocol.SixPCell, options protocol.CellOptions, addr protocol.LinkAddr) schedule.Cell {
	return schedule.Cell{
		Handle:        handle,
		Timeslot:      c.SlotOffset,
		ChannelOffset: c.ChannelOffset,
		Options:       linkOptions(options),
		Type:          schedule.LinkNormal,
		Neighbor:      addr,
	}
}

func removeCell(b *schedule.Batch, handle uint16, c protocol.SixPCell, options protocol.CellOptions, addr protocol.LinkAddr) error {
	if findCell(b.Resolve(handle, c.SlotOffset), addr, c, options) < 0 {
		return schedule.ErrNotFound
	}
	_, err := b.RemoveCell(handle, c.SlotOffset, addr)
	return err
}
