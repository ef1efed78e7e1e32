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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
)

const testTimeout = time.Second

// link delivers messages directly to the other engines
type link struct {
	from    protocol.LinkAddr
	engines map[protocol.LinkAddr]*Engine
	mutex   *sync.Mutex
	sent    [][]byte
	drop    func(msg []byte) bool
}

func (l *link) Send(peer protocol.LinkAddr, msg []byte, done func(bool)) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.sent = append(l.sent, append([]byte(nil), msg...))
	if l.drop != nil && l.drop(msg) {
		return nil
	}
	target := l.engines[peer]
	go func() {
		if done != nil {
			done(true)
		}
		if target != nil {
			target.Input(l.from, msg)
		}
	}()
	return nil
}

func (l *link) setDrop(fn func([]byte) bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.drop = fn
}

func (l *link) count() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.sent)
}

func (l *link) message(i int) []byte {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.sent[i]
}

func dropAll([]byte) bool {
	return true
}

func dropRequests(msg []byte) bool {
	return protocol.SixPType((msg[0]>>4)&0x03) == protocol.SixPRequest
}

type txLinks struct {
	mutex  *sync.Mutex
	counts map[protocol.LinkAddr]int
}

func (t *txLinks) SetTxLinks(addr protocol.LinkAddr, count int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.counts[addr] = count
	return nil
}

func (t *txLinks) get(addr protocol.LinkAddr) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.counts[addr]
}

type testNode struct {
	addr   protocol.LinkAddr
	table  *schedule.Table
	engine *Engine
	link   *link
	links  *txLinks
}

func newNetwork(t *testing.T, clock *rtimer.VirtualClock, ids ...uint64) []*testNode {
	engines := make(map[protocol.LinkAddr]*Engine)
	var nodes []*testNode
	for _, id := range ids {
		n := &testNode{
			addr:  protocol.LinkAddrFromUint64(id),
			table: schedule.NewTable(schedule.DefaultMaxSlotframes, schedule.DefaultMaxLinks),
			links: &txLinks{mutex: &sync.Mutex{}, counts: make(map[protocol.LinkAddr]int)},
		}
		sf := NewSimpleSF(1, 17, 4, testTimeout, int64(id))
		if err := sf.Install(n.table); err != nil {
			t.Fatal(err)
		}
		n.link = &link{from: n.addr, engines: engines, mutex: &sync.Mutex{}}
		n.engine = New(DefaultConfig(), n.table, n.link, n.links, clock)
		n.engine.Register(sf)
		engines[n.addr] = n.engine
		nodes = append(nodes, n)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, n := range nodes {
		go n.engine.Run(ctx)
	}
	return nodes
}

func waitResult(t *testing.T, n *testNode, initiator bool) Result {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r := <-n.engine.Results():
			if r.Initiator == initiator {
				return r
			}
		case <-timeout:
			t.Fatalf("No 6P result from %s", n.addr)
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition never became true")
}

func peerState(e *Engine, addr protocol.LinkAddr) (PeerState, bool) {
	for _, p := range e.Peers() {
		if p.Addr == addr {
			return p, true
		}
	}
	return PeerState{}, false
}

func cells(c ...uint16) []protocol.SixPCell {
	var ret []protocol.SixPCell
	for i := 0; i < len(c); i += 2 {
		ret = append(ret, protocol.SixPCell{SlotOffset: c[i], ChannelOffset: c[i+1]})
	}
	return ret
}

func TestAddCell(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	rb := waitResult(t, b, false)
	if rb.Code != protocol.RCSuccess || len(rb.Cells) != 1 {
		t.Fatalf("Unexpected responder result %+v", rb)
	}
	ra := waitResult(t, a, true)
	if ra.Err != nil || len(ra.Cells) != 1 || ra.Cells[0].SlotOffset != 5 {
		t.Fatalf("Unexpected initiator result %+v", ra)
	}

	got := b.table.Resolve(1, 5)
	if len(got) != 1 || got[0].Neighbor != a.addr || got[0].Options != schedule.OptionRX {
		t.Fatalf("Responder should have one RX cell for a: %v", got)
	}
	got = a.table.Resolve(1, 5)
	if len(got) != 1 || got[0].Neighbor != b.addr || got[0].Options != schedule.OptionTX {
		t.Fatalf("Initiator should have one TX cell for b: %v", got)
	}
	if a.links.get(b.addr) != 1 {
		t.Fatal("Queue should know about the dedicated TX cell")
	}
	for _, n := range []struct {
		node *testNode
		peer protocol.LinkAddr
	}{{a, b.addr}, {b, a.addr}} {
		ps, ok := peerState(n.node.engine, n.peer)
		if !ok || ps.NextSeq != 1 || ps.Gen != 1 {
			t.Fatalf("Unexpected peer state %+v", ps)
		}
	}
	if a.engine.State(b.addr) != Idle {
		t.Fatal("Transaction should be released")
	}
}

func TestConflictingAdd(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2, 3)
	a, b, c := nodes[0], nodes[1], nodes[2]

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	waitResult(t, a, true)
	version := b.table.Version()

	if err := c.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 1)); err != nil {
		t.Fatal(err)
	}
	rc := waitResult(t, c, true)
	if rc.Err != schedule.ErrDuplicateCell || rc.Code != protocol.RCErrCellList {
		t.Fatalf("Second add should be rejected, got %+v", rc)
	}
	if b.table.Version() != version {
		t.Fatal("Rejected add changed the table")
	}
	got := b.table.Resolve(1, 5)
	if len(got) != 1 || got[0].Neighbor != a.addr {
		t.Fatalf("First add should be intact: %v", got)
	}
	if len(c.table.Resolve(1, 5)) != 0 {
		t.Fatal("Initiator of the rejected add has a cell")
	}

	// The initiator refuses a timeslot it already uses
	if err := a.engine.Initiate(context.Background(), c.addr, protocol.CmdAdd, cells(5, 2)); err != schedule.ErrDuplicateCell {
		t.Fatalf("Expected local conflict, got %v", err)
	}
	if _, ok := peerState(a.engine, c.addr); ok {
		t.Fatal("Refused request should not create a peer")
	}
}

func TestTimeoutRollback(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]
	a.link.setDrop(dropAll)

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	if a.engine.State(b.addr) != RequestSent {
		t.Fatalf("State is %s", a.engine.State(b.addr))
	}
	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(6, 0)); err != ErrBusy {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
	a.engine.mutex.Lock()
	reserved := len(a.engine.reserved)
	a.engine.mutex.Unlock()
	if reserved != 1 {
		t.Fatalf("Expected one reservation, got %d", reserved)
	}

	clock.Advance(testTimeout)
	r := waitResult(t, a, true)
	if r.Err != ErrTimeout || r.State != TimedOut {
		t.Fatalf("Expected a timeout, got %+v", r)
	}
	if a.engine.State(b.addr) != Idle {
		t.Fatal("Timed out transaction should be released")
	}
	a.engine.mutex.Lock()
	reserved = len(a.engine.reserved)
	a.engine.mutex.Unlock()
	if reserved != 0 {
		t.Fatal("Reservation wasn't rolled back")
	}
	if a.table.Links() != 0 || b.table.Links() != 0 {
		t.Fatal("Timed out transaction left a cell behind")
	}
	if ps, _ := peerState(a.engine, b.addr); ps.NextSeq != 0 {
		t.Fatal("Sequence number should be kept for a retry")
	}
	if a.engine.Stats().Timeouts != 1 {
		t.Fatal("Timeout wasn't counted")
	}
}

// A response that breaks the protocol ends the transaction like a timeout
func TestInvalidResponse(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]
	a.link.setDrop(dropRequests)

	reservations := func() int {
		a.engine.mutex.Lock()
		defer a.engine.mutex.Unlock()
		return len(a.engine.reserved)
	}
	response := func(seq uint8, payload []byte) []byte {
		msg := protocol.SixPMessage{
			Version: protocol.SixPVersion,
			Type:    protocol.SixPResponse,
			Code:    uint8(protocol.RCSuccess),
			SFID:    SimpleSFID,
			SeqNum:  seq,
			Payload: payload,
		}
		buf, err := msg.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		return buf
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"wrong sequence number", response(7, []byte{5, 0, 0, 0})},
		{"truncated cell list", response(0, []byte{5, 0, 0})},
	}
	for i, test := range tests {
		if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if reservations() != 1 {
			t.Fatalf("%s: expected a reservation", test.name)
		}
		a.engine.Input(b.addr, test.data)
		r := waitResult(t, a, true)
		if r.State != TimedOut || r.Err != ErrTimeout {
			t.Fatalf("%s: expected the transaction to time out, got %+v", test.name, r)
		}
		if a.engine.State(b.addr) != Idle {
			t.Fatalf("%s: transaction should be released", test.name)
		}
		if reservations() != 0 {
			t.Fatalf("%s: reservation wasn't rolled back", test.name)
		}
		if a.table.Links() != 0 {
			t.Fatalf("%s: schedule changed: %d links", test.name, a.table.Links())
		}
		if a.links.get(b.addr) != 0 {
			t.Fatalf("%s: queue was told about a TX cell", test.name)
		}
		if got := a.engine.Stats().Timeouts; got != uint64(i+1) {
			t.Fatalf("%s: expected %d timeouts, got %d", test.name, i+1, got)
		}
	}
	if a.engine.Stats().Malformed != 1 {
		t.Fatal("Truncated response wasn't counted as malformed")
	}
}

func TestAtomicCommit(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]

	injected := errors.New("injected fault")
	b.engine.mutex.Lock()
	b.engine.beforeSend = func() error { return injected }
	b.engine.mutex.Unlock()

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return b.engine.Stats().SendFailures == 1 })
	if b.table.Links() != 0 {
		t.Fatal("Commit wasn't rolled back")
	}
	if b.link.count() != 0 {
		t.Fatal("Response was sent for a failed commit")
	}
	if len(b.engine.Peers()) != 0 {
		t.Fatal("Failed request should not leave peer state")
	}

	clock.Advance(testTimeout)
	if r := waitResult(t, a, true); r.Err != ErrTimeout {
		t.Fatalf("Expected timeout, got %+v", r)
	}

	b.engine.mutex.Lock()
	b.engine.beforeSend = nil
	b.engine.mutex.Unlock()
	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, a, true)
	if r.Err != nil || r.SeqNum != 0 {
		t.Fatalf("Retry should succeed with the same sequence number: %+v", r)
	}
	if b.table.Links() != 1 || a.table.Links() != 1 {
		t.Fatal("Expected one cell on each side")
	}
}

func TestDuplicateRequest(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	waitResult(t, a, true)
	version := b.table.Version()
	request := a.link.message(0)
	if b.link.count() != 1 {
		t.Fatal("Expected one response")
	}

	b.engine.Input(a.addr, request)
	eventually(t, func() bool { return b.engine.Stats().Duplicates == 1 })
	if b.table.Version() != version || b.table.Links() != 1 {
		t.Fatal("Duplicate request changed the table")
	}
	if b.link.count() != 2 || !bytes.Equal(b.link.message(0), b.link.message(1)) {
		t.Fatal("Duplicate should be answered with the cached response")
	}
	if ps, _ := peerState(b.engine, a.addr); ps.Gen != 1 || ps.NextSeq != 1 {
		t.Fatalf("Duplicate changed the peer state: %+v", ps)
	}
}

func TestGenerationAndClear(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(5, 0)); err != nil {
		t.Fatal(err)
	}
	waitResult(t, a, true)

	a.engine.mutex.Lock()
	a.engine.peers[b.addr].gen = 3
	a.engine.mutex.Unlock()
	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdAdd, cells(6, 0)); err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, a, true)
	if r.Err != ErrGeneration || r.Code != protocol.RCReset {
		t.Fatalf("Expected RC_RESET, got %+v", r)
	}
	if b.table.Links() != 1 || a.table.Links() != 1 {
		t.Fatal("Generation mismatch must not change the schedules")
	}

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdClear, nil); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, a, true); r.Err != nil {
		t.Fatal(r.Err)
	}
	if b.table.Links() != 0 || a.table.Links() != 0 {
		t.Fatal("CLEAR should remove all negotiated cells")
	}
	for _, n := range []struct {
		node *testNode
		peer protocol.LinkAddr
	}{{a, b.addr}, {b, a.addr}} {
		ps, _ := peerState(n.node.engine, n.peer)
		if ps.NextSeq != 0 || ps.Gen != 0 {
			t.Fatalf("CLEAR should reset the peer state: %+v", ps)
		}
	}
	if a.links.get(b.addr) != 0 {
		t.Fatal("TX link count should be reset")
	}
}

func TestCommands(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]
	ctx := context.Background()

	run := func(req Request) Result {
		t.Helper()
		if err := a.engine.Submit(ctx, b.addr, req); err != nil {
			t.Fatal(err)
		}
		r := waitResult(t, a, true)
		if r.Err != nil {
			t.Fatalf("%s failed: %v", req.Command, r.Err)
		}
		return r
	}

	r := run(Request{Command: protocol.CmdAdd, Options: protocol.CellOptionTX, NumCells: 2, Cells: cells(3, 1, 5, 2)})
	if len(r.Cells) != 2 {
		t.Fatalf("Expected two cells, got %v", r.Cells)
	}
	if r = run(Request{Command: protocol.CmdCount, Options: protocol.CellOptionTX}); r.Count != 2 {
		t.Fatalf("COUNT returned %d", r.Count)
	}
	r = run(Request{Command: protocol.CmdList, Options: protocol.CellOptionTX, MaxCells: 16})
	if r.Code != protocol.RCEOL || len(r.Cells) != 2 || r.Cells[0].SlotOffset != 3 {
		t.Fatalf("Unexpected LIST result %+v", r)
	}
	run(Request{Command: protocol.CmdDelete, Options: protocol.CellOptionTX, Cells: cells(3, 1)})
	if len(a.table.Resolve(1, 3)) != 0 || len(b.table.Resolve(1, 3)) != 0 {
		t.Fatal("DELETE didn't remove the cell")
	}
	r = run(Request{Command: protocol.CmdRelocate, Options: protocol.CellOptionTX, Relocate: cells(5, 2), Cells: cells(7, 0)})
	if len(r.Cells) != 1 || r.Cells[0].SlotOffset != 7 {
		t.Fatalf("Unexpected RELOCATE result %+v", r)
	}
	for _, n := range []*testNode{a, b} {
		if len(n.table.Resolve(1, 5)) != 0 || len(n.table.Resolve(1, 7)) != 1 {
			t.Fatalf("Cell wasn't relocated on %s", n.addr)
		}
	}
	ps, _ := peerState(a.engine, b.addr)
	if ps.NextSeq != 5 || ps.Gen != 3 {
		t.Fatalf("Unexpected peer state %+v", ps)
	}
	if err := a.engine.Initiate(ctx, b.addr, protocol.CmdDelete, cells(9, 0)); err != schedule.ErrNotFound {
		t.Fatalf("Deleting an unknown cell should fail locally, got %v", err)
	}
}

func TestBusyPeer(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1, 2)
	a, b := nodes[0], nodes[1]
	a.link.setDrop(dropRequests)

	if err := a.engine.Initiate(context.Background(), b.addr, protocol.CmdCount, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.engine.Initiate(context.Background(), a.addr, protocol.CmdCount, nil); err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, b, true)
	if r.Err != ErrPeerBusy || r.Code != protocol.RCErrBusy {
		t.Fatalf("Expected RC_ERR_BUSY, got %+v", r)
	}
}

func TestRequestErrors(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	nodes := newNetwork(t, clock, 1)
	a := nodes[0]
	stranger := protocol.LinkAddrFromUint64(99)

	expect := func(raw []byte, rc protocol.SixPReturnCode) {
		t.Helper()
		before := a.link.count()
		a.engine.Input(stranger, raw)
		eventually(t, func() bool { return a.link.count() == before+1 })
		msg := protocol.SixPMessage{}
		if err := msg.UnmarshalBinary(a.link.message(before)); err != nil {
			t.Fatal(err)
		}
		if msg.Type != protocol.SixPResponse || msg.ReturnCode() != rc {
			t.Fatalf("Expected %s, got %s", rc, msg)
		}
	}
	encode := func(sfid, seq uint8) []byte {
		msg := protocol.NewSixPRequest(protocol.CmdCount, sfid, seq, protocol.SixPBody{CellOptions: protocol.CellOptionTX})
		buf, err := msg.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		return buf
	}

	expect(encode(SimpleSFID, 3), protocol.RCErrSeqNum)
	if len(a.engine.Peers()) != 0 {
		t.Fatal("Inconsistent request should not create a peer")
	}
	expect(encode(0x42, 0), protocol.RCErrSFID)

	bad := encode(SimpleSFID, 0)
	bad[0] |= 0x01
	expect(bad, protocol.RCErrVersion)

	expect(encode(SimpleSFID, 0), protocol.RCSuccess)
}

func TestSequenceAndGeneration(t *testing.T) {
	if nextSeqNum(0x0e) != 0x0f || nextSeqNum(0x0f) != 0 {
		t.Fatal("Sequence number should wrap after 0x0f")
	}
	expected := []uint8{1, 2, 3, 1, 2}
	gen := uint8(0)
	for i, e := range expected {
		gen = nextGen(gen)
		if gen != e {
			t.Fatalf("Step %d: generation %d, expected %d", i, gen, e)
		}
	}
	if reverse(protocol.CellOptionTX|protocol.CellOptionShared) != protocol.CellOptionRX|protocol.CellOptionShared {
		t.Fatal("TX should become RX")
	}
}

func TestSimpleSFCandidates(t *testing.T) {
	table := schedule.NewTable(schedule.DefaultMaxSlotframes, schedule.DefaultMaxLinks)
	sf := NewSimpleSF(1, 5, 2, time.Second, 1)
	if err := sf.Install(table); err != nil {
		t.Fatal(err)
	}
	if err := sf.Install(table); err != nil {
		t.Fatal("Installing twice should be harmless")
	}
	if err := table.AddCell(schedule.Cell{Handle: 1, Timeslot: 0, Options: schedule.OptionTX, Neighbor: protocol.BroadcastAddr}); err != nil {
		t.Fatal(err)
	}
	frame, err := table.Slotframe(1)
	if err != nil {
		t.Fatal(err)
	}
	got := sf.Candidates(frame, 10, func(ts uint16) bool { return ts == 1 })
	if len(got) != 3 {
		t.Fatalf("Expected 3 candidates, got %v", got)
	}
	for _, c := range got {
		if c.SlotOffset < 2 || c.SlotOffset > 4 || c.ChannelOffset > 1 {
			t.Fatalf("Unexpected candidate %+v", c)
		}
	}
	if got = sf.Candidates(frame, 1, nil); len(got) != 1+DefaultExtraCandidates {
		t.Fatalf("Expected %d candidates, got %d", 1+DefaultExtraCandidates, len(got))
	}
}
