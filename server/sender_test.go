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
	"bytes"
	"errors"
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
)

func TestFrameSender(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	self := protocol.LinkAddrFromUint64(1)
	peer := protocol.LinkAddrFromUint64(2)
	s := NewFrameSender(self, 0xabcd, q)

	var result []bool
	msg := []byte{0x02, 0x01, 0xf0, 0x00}
	if err := s.Send(peer, msg, func(ok bool) { result = append(result, ok) }); err != nil {
		t.Fatal(err)
	}
	p := q.Peek(peer, true)
	if p == nil || !p.AckRequest || p.Dest != peer {
		t.Fatalf("Unexpected packet %+v", p)
	}
	f := protocol.Frame{}
	if err := f.UnmarshalBinary(p.Frame); err != nil {
		t.Fatal(err)
	}
	if f.Source != self || f.Destination != peer || f.PANID != 0xabcd || !bytes.Equal(f.SixP, msg) {
		t.Fatalf("Unexpected frame %+v", f)
	}

	// The TX processor calls Sent when the packet leaves the queue
	if !q.Report(p, true, queue.TxOK) {
		t.Fatal("Packet should be done")
	}
	p.Sent(p)
	if len(result) != 1 || !result[0] {
		t.Fatalf("Expected one successful result, got %v", result)
	}

	if err := s.SendData(protocol.BroadcastAddr, []byte("hello"), nil); err != nil {
		t.Fatal(err)
	}
	p = q.Peek(protocol.BroadcastAddr, true)
	if p == nil || p.AckRequest || p.Sent != nil {
		t.Fatalf("Broadcast data should not request an ACK: %+v", p)
	}

	if err := s.SendKeepalive(peer, nil); err != nil {
		t.Fatal(err)
	}
	if q.Neighbor(peer).Len() != 1 {
		t.Fatal("Keepalive should be queued for the time source")
	}
}

func TestFrameSenderBeacon(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	s := NewFrameSender(protocol.LinkAddrFromUint64(1), 0xabcd, q)
	if err := s.SendBeacon(); err != nil {
		t.Fatal(err)
	}
	if !q.BeaconPending() {
		t.Fatal("Beacon should be pending")
	}
	if err := s.SendBeacon(); err != queue.ErrQueueFull {
		t.Fatalf("Only one beacon can be queued (err=%v)", err)
	}
	f := protocol.Frame{}
	if err := f.UnmarshalBinary(q.PeekBeacon().Frame); err != nil || !f.IsEnhancedBeacon() {
		t.Fatalf("Expected an enhanced beacon (err=%v)", err)
	}
}

// xorSecurity flips every bit and rejects payloads starting with 0xff
type xorSecurity struct{}

func (xorSecurity) Secure(peer protocol.LinkAddr, payload []byte) ([]byte, error) {
	ret := make([]byte, len(payload))
	for i, b := range payload {
		ret[i] = ^b
	}
	return ret, nil
}

func (x xorSecurity) Unsecure(peer protocol.LinkAddr, payload []byte) ([]byte, error) {
	if payload[0] == 0xff {
		return nil, errors.New("bad payload")
	}
	return x.Secure(peer, payload)
}

func TestFrameSenderSecurity(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	peer := protocol.LinkAddrFromUint64(2)
	s := NewFrameSender(protocol.LinkAddrFromUint64(1), 0xabcd, q)
	s.SetSecurity(xorSecurity{})

	if err := s.SendData(peer, []byte{0x01, 0x02}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SendKeepalive(peer, nil); err != nil {
		t.Fatal(err)
	}
	p := q.Peek(peer, true)
	f := protocol.Frame{}
	if err := f.UnmarshalBinary(p.Frame); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Payload, []byte{0xfe, 0xfd}) {
		t.Fatalf("Payload should be transformed, got %x", f.Payload)
	}
	plain, err := xorSecurity{}.Unsecure(peer, f.Payload)
	if err != nil || !bytes.Equal(plain, []byte{0x01, 0x02}) {
		t.Fatalf("Unexpected plain text %x (%v)", plain, err)
	}
}
