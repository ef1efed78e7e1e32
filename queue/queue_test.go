package queue

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
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
)

var (
	n1 = protocol.LinkAddrFromUint64(1)
	n2 = protocol.LinkAddrFromUint64(2)
)

func TestAddPeekReport(t *testing.T) {
	q := New(DefaultConfig())
	p := &Packet{Frame: []byte{1}, Dest: n1}
	if err := q.Add(p); err != nil {
		t.Fatal(err)
	}
	if q.Peek(n1, false) != p {
		t.Fatal("Expected the packet for n1")
	}
	if q.Peek(n2, false) != nil {
		t.Fatal("Nothing queued for n2")
	}
	if q.Total() != 1 {
		t.Fatalf("Total = %d", q.Total())
	}
	if !q.Report(p, false, TxOK) {
		t.Fatal("Delivered packet should leave the queue")
	}
	if p.Transmissions != 1 || p.Status != TxOK || q.Total() != 0 {
		t.Fatalf("Unexpected state %+v", p)
	}
	if q.Report(p, false, TxOK) {
		t.Fatal("Reporting a packet that isn't queued should be ignored")
	}
}

func TestRetransmissions(t *testing.T) {
	q := New(DefaultConfig())
	p := &Packet{Frame: []byte{1}, Dest: n1, MaxTransmissions: 3}
	q.Add(p)
	if q.Report(p, false, TxNoAck) || q.Report(p, false, TxNoAck) {
		t.Fatal("Packet should stay queued until it runs out of attempts")
	}
	if q.Neighbor(n1).InBackoff() {
		t.Fatal("Dedicated cells don't back off")
	}
	if !q.Report(p, false, TxNoAck) {
		t.Fatal("Packet should be dropped after three attempts")
	}
	if p.Transmissions != 3 || p.Status != TxNoAck {
		t.Fatalf("Unexpected state %+v", p)
	}
}

func TestSharedBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBE = 1
	cfg.MaxBE = 1
	q := New(cfg)
	p := &Packet{Frame: []byte{1}, Dest: n1}
	q.Add(p)
	q.Report(p, true, TxNoAck)
	n := q.Neighbor(n1)
	if !n.InBackoff() {
		t.Fatal("Failure on a shared cell should start the backoff")
	}
	if q.Peek(n1, true) != nil {
		t.Fatal("Backing off neighbors get nothing on shared cells")
	}
	if q.Peek(n1, false) != p {
		t.Fatal("Dedicated cells ignore the backoff")
	}
	// Window is at most 2 with BE=1
	for i := 0; i < 2; i++ {
		q.UpdateBackoff(protocol.BroadcastAddr)
	}
	if n.InBackoff() {
		t.Fatal("Backoff window should have expired")
	}
	if q.Peek(n1, true) != p {
		t.Fatal("Packet should be available again")
	}
	q.Report(p, true, TxOK)
	if n.backoffExponent != cfg.MinBE {
		t.Fatal("Success should reset the backoff")
	}
}

func TestPeekAny(t *testing.T) {
	q := New(DefaultConfig())
	p1 := &Packet{Frame: []byte{1}, Dest: n1}
	p2 := &Packet{Frame: []byte{2}, Dest: n2}
	q.Add(p1)
	q.Add(p2)
	q.SetTxLinks(n1, 1)
	if q.PeekAny(true) != p2 {
		t.Fatal("Neighbors with dedicated cells should be skipped")
	}
	q.SetTxLinks(n2, 2)
	if q.PeekAny(true) != nil {
		t.Fatal("Expected nothing")
	}

	b := &Packet{Frame: []byte{3}, Dest: protocol.BroadcastAddr}
	q.Add(b)
	if q.Peek(protocol.BroadcastAddr, true) != b {
		t.Fatal("Expected the broadcast packet")
	}
}

func TestBeacon(t *testing.T) {
	q := New(DefaultConfig())
	eb := &Packet{Frame: []byte{1}, SyncOffset: 20}
	if err := q.AddBeacon(eb); err != nil {
		t.Fatal(err)
	}
	if err := q.AddBeacon(&Packet{Frame: []byte{1}, SyncOffset: 20}); err != ErrQueueFull {
		t.Fatalf("Only one beacon at a time, got %v", err)
	}
	if !q.BeaconPending() || q.PeekBeacon() != eb {
		t.Fatal("Beacon should be pending")
	}
	if !q.Report(eb, true, TxOK) || q.BeaconPending() {
		t.Fatal("Beacon should be removed after one attempt")
	}
	if err := q.Add(&Packet{Frame: []byte{1}, SyncOffset: 1}); err != ErrInvalidPacket {
		t.Fatal("Beacons must use AddBeacon")
	}
}

func TestLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerNeighbor = 2
	cfg.MaxNeighbors = 1
	q := New(cfg)
	q.Add(&Packet{Frame: []byte{1}, Dest: n1})
	q.Add(&Packet{Frame: []byte{1}, Dest: n1})
	if err := q.Add(&Packet{Frame: []byte{1}, Dest: n1}); err != ErrQueueFull {
		t.Fatalf("Expected full queue, got %v", err)
	}
	if err := q.Add(&Packet{Frame: []byte{1}, Dest: n2}); err != ErrTooManyNeighbors {
		t.Fatalf("Expected too many neighbors, got %v", err)
	}
	if err := q.Add(&Packet{Dest: n1}); err != ErrInvalidPacket {
		t.Fatal("Packet without frame should fail")
	}
	if q.Free(n1) != 0 || q.Free(n2) != 2 {
		t.Fatal("Free is wrong")
	}
}
