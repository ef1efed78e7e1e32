package monitoring

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

func TestNeighborCounters(t *testing.T) {
	addr := protocol.LinkAddrFromUint64(0x0102)
	c := GetNeighborCounters(addr)
	if c != GetNeighborCounters(addr) {
		t.Fatal("Expected the same counters for the same neighbor")
	}
	c.In()
	c.In()
	c.Out()
	in := c.FramesIn.GetCounts()
	out := c.FramesOut.GetCounts()
	if in[len(in)-1] != 2 || out[len(out)-1] != 1 {
		t.Fatalf("Unexpected counts in=%v out=%v", in, out)
	}

	RemoveNeighborCounters(addr)
	if GetNeighborCounters(addr) == c {
		t.Fatal("Expected new counters after removal")
	}
}
