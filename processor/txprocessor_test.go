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
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/radio/sim"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/slot"
)

func TestTxProcessorChannels(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	n := newTestNode(t, clock, sim.NewMedium(clock, 1), joinerAddr, false, 0)
	input := make(chan slot.TxResult)
	tx := NewTxProcessor(n.context, input)
	go tx.Start()

	close(input)
	select {
	case <-tx.Done():
	case <-time.After(time.Second):
		t.Fatal("TX processor didn't terminate")
	}
}

func TestTxProcessorCallback(t *testing.T) {
	clock := rtimer.NewVirtualClock()
	n := newTestNode(t, clock, sim.NewMedium(clock, 1), joinerAddr, false, 0)
	input := make(chan slot.TxResult)
	tx := NewTxProcessor(n.context, input)
	go tx.Start()

	sent := make(chan *queue.Packet, 2)
	p := &queue.Packet{
		Dest:       protocol.LinkAddrFromUint64(0x42),
		SeqNum:     9,
		AckRequest: true,
		Sent: func(p *queue.Packet) {
			sent <- p
		},
	}

	// A retry doesn't complete the packet
	input <- slot.TxResult{Packet: p, Status: queue.TxNoAck, Channel: 15, Transmissions: 1}
	p.Status = queue.TxOK
	input <- slot.TxResult{Packet: p, Status: queue.TxOK, Done: true, Channel: 20, Transmissions: 2}
	// Results without a packet are ignored
	input <- slot.TxResult{Status: queue.TxOK, Done: true}
	close(input)
	<-tx.Done()

	if len(sent) != 1 {
		t.Fatalf("Expected one completion, got %d", len(sent))
	}
	if done := <-sent; done != p || done.Status != queue.TxOK {
		t.Fatal("Unexpected packet in the callback")
	}
	if _, ok := n.context.Stats.Neighbor(p.Dest); !ok {
		t.Fatal("Link stats should be updated for the destination")
	}
}
