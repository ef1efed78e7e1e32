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
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/radio/sim"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/slot"
)

func TestRingInterfacePoll(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	n := newTestNode(t, clock, sim.NewMedium(clock, 1), joinerAddr, false, 0)
	rings := NewRingInterface(n.context, 0)
	engine := n.context.Engine

	if rings.Poll() != 0 {
		t.Fatal("Rings should be empty")
	}
	engine.RxQueue().Put(slot.Received{ASN: 1, Length: 1})
	engine.RxQueue().Put(slot.Received{ASN: 2, Length: 1})
	engine.TxQueue().Put(slot.TxResult{ASN: 3, Status: queue.TxOK, Packet: &queue.Packet{}})
	engine.LogQueue().Put(slot.LogRecord{Kind: slot.LogRx, ASN: 4, Neighbor: protocol.LinkAddrFromUint64(1), Correction: -12})
	engine.LogQueue().Put(slot.LogRecord{Kind: slot.LogDropped, ASN: 5, Dropped: 3})

	if n := rings.Poll(); n != 5 {
		t.Fatalf("Expected 5 records, got %d", n)
	}
	if rec := <-rings.RxOutput(); rec.ASN != 1 {
		t.Fatalf("Frames should be delivered in order, got ASN %d", rec.ASN)
	}
	if rec := <-rings.RxOutput(); rec.ASN != 2 {
		t.Fatalf("Frames should be delivered in order, got ASN %d", rec.ASN)
	}
	if res := <-rings.TxOutput(); res.ASN != 3 {
		t.Fatalf("Unexpected TX result %+v", res)
	}
	if n.context.Stats.Global().MaxSyncError == 0 {
		t.Fatal("Corrections in the slot log should reach the link stats")
	}
	if engine.LogQueue().Len() != 0 {
		t.Fatal("Log ring should be drained")
	}
}

func TestRingInterfaceBackpressure(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	n := newTestNode(t, clock, sim.NewMedium(clock, 1), joinerAddr, false, 0)
	rings := NewRingInterface(n.context, 0)
	rx := n.context.Engine.RxQueue()

	for i := 0; i < rx.Cap(); i++ {
		rx.Put(slot.Received{ASN: protocol.ASN(i)})
	}
	if got := rings.Poll(); got != rx.Cap() {
		t.Fatalf("Expected %d records, got %d", rx.Cap(), got)
	}
	// Nobody reads the output so the next records stay in the ring
	rx.Put(slot.Received{ASN: 1000})
	if rings.Poll() != 0 || rx.Len() != 1 {
		t.Fatal("Records should stay in the ring when the output is full")
	}
	<-rings.RxOutput()
	if rings.Poll() != 1 || rx.Len() != 0 {
		t.Fatal("Ring should drain once there's room")
	}
}

func TestRingInterfaceTimer(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	n := newTestNode(t, clock, sim.NewMedium(clock, 1), joinerAddr, false, 0)
	rings := NewRingInterface(n.context, DefaultPollInterval)
	rings.Start()

	n.context.Engine.RxQueue().Put(slot.Received{ASN: 42})
	clock.Advance(DefaultPollInterval)
	select {
	case rec := <-rings.RxOutput():
		if rec.ASN != 42 {
			t.Fatalf("Unexpected record %+v", rec)
		}
	default:
		t.Fatal("Ring should be polled by the timer")
	}

	rings.Stop()
	if _, ok := <-rings.RxOutput(); ok {
		t.Fatal("Output should be closed after Stop")
	}
	if _, ok := <-rings.TxOutput(); ok {
		t.Fatal("Output should be closed after Stop")
	}
	// Polling after stop is a no-op
	n.context.Engine.RxQueue().Put(slot.Received{ASN: 43})
	clock.Advance(DefaultPollInterval)
	if rings.Poll() != 0 {
		t.Fatal("Stopped interface shouldn't poll")
	}
}
