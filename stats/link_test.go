package stats

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
)

func TestTxSuccess(t *testing.T) {
	c := NewCollector(DefaultMaxNeighbors)
	n := protocol.LinkAddrFromUint64(1)
	if err := c.TxPacket(n, queue.TxOK, 15); err != nil {
		t.Fatal(err)
	}
	st, ok := c.Neighbor(n)
	if !ok {
		t.Fatal("Neighbor should exist")
	}
	// 2048 * 7/8 + 4096/8 = 2304
	if st[4].Channel != 15 || st[4].TxSuccess != 2304.0/4096.0 {
		t.Fatalf("Unexpected stats %+v", st[4])
	}
	if st[0].TxSuccess != 0.5 {
		t.Fatal("Other channels should keep the default")
	}
	c.TxPacket(n, queue.TxNoAck, 15)
	st, _ = c.Neighbor(n)
	if st[4].TxSuccess != 2016.0/4096.0 {
		t.Fatalf("Failure should lower the estimate, got %f", st[4].TxSuccess)
	}

	// Broadcasts and unknown channels are ignored
	c.TxPacket(protocol.BroadcastAddr, queue.TxOK, 15)
	c.TxPacket(protocol.LinkAddrFromUint64(2), queue.TxOK, 5)
	if len(c.Neighbors()) != 1 {
		t.Fatal("Expected one neighbor")
	}
}

func TestRxAndDecay(t *testing.T) {
	c := NewCollector(DefaultMaxNeighbors)
	n := protocol.LinkAddrFromUint64(1)
	c.RxPacket(n, -50, 100, 11)
	st, _ := c.Neighbor(n)
	// 1440 * 7/8 + 800/8 = 1360
	if st[0].RSSI != -85 || st[0].LQI != 100 {
		t.Fatalf("Unexpected stats %+v", st[0])
	}
	for i := 0; i < 100; i++ {
		c.Decay()
	}
	st, _ = c.Neighbor(n)
	// Integer rounding settles within half a dB of the default
	if st[0].RSSI < -90 || st[0].RSSI > -89.5 {
		t.Fatalf("RSSI should decay towards the default, got %f", st[0].RSSI)
	}
}

func TestNeighborLimit(t *testing.T) {
	c := NewCollector(1)
	if err := c.RxPacket(protocol.LinkAddrFromUint64(1), -60, 0, 11); err != nil {
		t.Fatal(err)
	}
	if err := c.RxPacket(protocol.LinkAddrFromUint64(2), -60, 0, 11); err != ErrTooManyNeighbors {
		t.Fatal("Expected the table to be full")
	}
	c.Remove(protocol.LinkAddrFromUint64(1))
	if err := c.RxPacket(protocol.LinkAddrFromUint64(2), -60, 0, 11); err != nil {
		t.Fatal(err)
	}
}

func TestGlobal(t *testing.T) {
	c := NewCollector(DefaultMaxNeighbors)
	c.OnSync(-40)
	c.OnSync(12)
	c.Disassociated()
	c.SampleNoise(26, -70)
	g := c.Global()
	if g.MaxSyncError != 40 || g.Disassociations != 1 {
		t.Fatalf("Unexpected global stats %+v", g)
	}
	if g.ChannelFree[15] != 3584.0/4096.0 || g.ChannelFree[0] != 1.0 {
		t.Fatalf("Busy sample should lower the free estimate: %v", g.ChannelFree)
	}
}
