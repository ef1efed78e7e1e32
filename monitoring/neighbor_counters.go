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
	"sync"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var neighborFrames = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "neighbor_frames_total",
		Help:      "Frames to and from each neighbor",
	},
	[]string{"neighbor", "direction"}, // direction: in/out
)

// NeighborCounter holds the frame counters for a single neighbor
type NeighborCounter struct {
	FramesIn  *TimeSeries `json:"framesIn"`
	FramesOut *TimeSeries `json:"framesOut"`
	in        prometheus.Counter
	out       prometheus.Counter
}

func newNeighborCounter(addr protocol.LinkAddr) *NeighborCounter {
	return &NeighborCounter{
		FramesIn:  NewTimeSeries(Minutes),
		FramesOut: NewTimeSeries(Minutes),
		in:        neighborFrames.WithLabelValues(addr.String(), "in"),
		out:       neighborFrames.WithLabelValues(addr.String(), "out"),
	}
}

// In counts a frame received from the neighbor
func (n *NeighborCounter) In() {
	n.FramesIn.Increment()
	n.in.Inc()
}

// Out counts a frame sent to the neighbor
func (n *NeighborCounter) Out() {
	n.FramesOut.Increment()
	n.out.Inc()
}

var neighborCounters = struct {
	mutex    *sync.Mutex
	counters map[protocol.LinkAddr]*NeighborCounter
}{&sync.Mutex{}, make(map[protocol.LinkAddr]*NeighborCounter)}

// GetNeighborCounters returns the counters for the neighbor. The counters
// are created on first use.
func GetNeighborCounters(addr protocol.LinkAddr) *NeighborCounter {
	neighborCounters.mutex.Lock()
	defer neighborCounters.mutex.Unlock()
	ret, ok := neighborCounters.counters[addr]
	if !ok {
		ret = newNeighborCounter(addr)
		neighborCounters.counters[addr] = ret
	}
	return ret
}

// RemoveNeighborCounters removes the counters for a neighbor that has been
// evicted from the link statistics.
func RemoveNeighborCounters(addr protocol.LinkAddr) {
	neighborCounters.mutex.Lock()
	defer neighborCounters.mutex.Unlock()
	delete(neighborCounters.counters, addr)
	neighborFrames.DeleteLabelValues(addr.String(), "in")
	neighborFrames.DeleteLabelValues(addr.String(), "out")
}
