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
	"errors"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
)

// Channel range covered by the statistics (2.4 GHz O-QPSK channels)
const (
	FirstChannel = 11
	NumChannels  = 16
)

// Values are kept as scaled integers. RSSI is scaled with a negative factor
// so the stored value is positive for the normal (negative) dBm range.
const (
	RSSIScale   = -16
	LQIScale    = 16
	BinaryScale = 4096

	DefaultRSSI        = -90 * RSSIScale
	DefaultLQI         = 100 * LQIScale
	DefaultTxSuccess   = BinaryScale / 2
	DefaultChannelFree = BinaryScale

	// BusyChannelRSSI is the noise level (dBm) above which a channel is
	// considered busy
	BusyChannelRSSI = -85

	// DefaultDecayInterval is how often the neighbor statistics decay
	// towards the defaults
	DefaultDecayInterval = 20 * time.Minute

	DefaultMaxNeighbors = 32
)

// ErrTooManyNeighbors is returned when the neighbor table is full
var ErrTooManyNeighbors = errors.New("too many neighbors")

func ewma(x, v int32) int32 {
	return x*7/8 + v/8
}

// ChannelStats holds the link quality for one channel
type ChannelStats struct {
	Channel   uint8
	RSSI      float64 // dBm
	LQI       float64
	TxSuccess float64 // Probability of a successful transmission
}

type channelStats struct {
	rssi      int32
	lqi       int32
	txSuccess int32
}

func (c *channelStats) reset() {
	c.rssi = DefaultRSSI
	c.lqi = DefaultLQI
	c.txSuccess = DefaultTxSuccess
}

func (c *channelStats) decay() {
	c.rssi = ewma(c.rssi, DefaultRSSI)
	c.lqi = ewma(c.lqi, DefaultLQI)
	c.txSuccess = ewma(c.txSuccess, DefaultTxSuccess)
}

type neighborStats struct {
	channels [NumChannels]channelStats
}

// Global holds the node wide statistics
type Global struct {
	MaxSyncError    int32 // Largest time correction seen, in ticks
	Disassociations uint32
	NoiseRSSI       [NumChannels]float64
	ChannelFree     [NumChannels]float64
}

// Collector gathers link statistics from the slot engine records. It is
// updated from the background domain.
type Collector struct {
	mutex           *sync.Mutex
	maxNeighbors    int
	neighbors       map[protocol.LinkAddr]*neighborStats
	maxSyncError    int32
	disassociations uint32
	noise           [NumChannels]int32
	free            [NumChannels]int32
}

// NewCollector creates an empty collector
func NewCollector(maxNeighbors int) *Collector {
	ret := &Collector{
		mutex:        &sync.Mutex{},
		maxNeighbors: maxNeighbors,
		neighbors:    make(map[protocol.LinkAddr]*neighborStats),
	}
	for i := range ret.noise {
		ret.noise[i] = DefaultRSSI
		ret.free[i] = DefaultChannelFree
	}
	return ret
}

func index(channel uint8) (int, bool) {
	i := int(channel) - FirstChannel
	return i, i >= 0 && i < NumChannels
}

func (c *Collector) neighbor(addr protocol.LinkAddr) (*neighborStats, error) {
	if n, ok := c.neighbors[addr]; ok {
		return n, nil
	}
	if len(c.neighbors) >= c.maxNeighbors {
		return nil, ErrTooManyNeighbors
	}
	n := &neighborStats{}
	for i := range n.channels {
		n.channels[i].reset()
	}
	c.neighbors[addr] = n
	return n, nil
}

// TxPacket records the outcome of a transmission to the neighbor
func (c *Collector) TxPacket(addr protocol.LinkAddr, status queue.TxStatus, channel uint8) error {
	i, ok := index(channel)
	if !ok || addr.IsBroadcast() {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n, err := c.neighbor(addr)
	if err != nil {
		return err
	}
	v := int32(0)
	if status == queue.TxOK {
		v = BinaryScale
	}
	n.channels[i].txSuccess = ewma(n.channels[i].txSuccess, v)
	return nil
}

// RxPacket records a frame received from the neighbor
func (c *Collector) RxPacket(addr protocol.LinkAddr, rssi int8, lqi uint8, channel uint8) error {
	i, ok := index(channel)
	if !ok {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n, err := c.neighbor(addr)
	if err != nil {
		return err
	}
	n.channels[i].rssi = ewma(n.channels[i].rssi, int32(rssi)*RSSIScale)
	n.channels[i].lqi = ewma(n.channels[i].lqi, int32(lqi)*LQIScale)
	return nil
}

// OnSync records a time correction
func (c *Collector) OnSync(correction int32) {
	if correction < 0 {
		correction = -correction
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if correction > c.maxSyncError {
		c.maxSyncError = correction
	}
}

// Disassociated counts a lost association
func (c *Collector) Disassociated() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disassociations++
}

// SampleNoise records a background noise measurement on the channel
func (c *Collector) SampleNoise(channel uint8, rssi int8) {
	i, ok := index(channel)
	if !ok {
		return
	}
	free := int32(0)
	if int(rssi) <= BusyChannelRSSI {
		free = BinaryScale
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.noise[i] = ewma(c.noise[i], int32(rssi)*RSSIScale)
	c.free[i] = ewma(c.free[i], free)
}

// Decay moves the neighbor statistics towards the defaults. Stale links
// are forgotten gradually when nothing is heard from them.
func (c *Collector) Decay() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, n := range c.neighbors {
		for i := range n.channels {
			n.channels[i].decay()
		}
	}
}

// Remove forgets the neighbor
func (c *Collector) Remove(addr protocol.LinkAddr) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.neighbors, addr)
}

// Neighbor returns the per channel statistics for the neighbor
func (c *Collector) Neighbor(addr protocol.LinkAddr) ([]ChannelStats, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n, ok := c.neighbors[addr]
	if !ok {
		return nil, false
	}
	ret := make([]ChannelStats, NumChannels)
	for i, ch := range n.channels {
		ret[i] = ChannelStats{
			Channel:   uint8(FirstChannel + i),
			RSSI:      float64(ch.rssi) / RSSIScale,
			LQI:       float64(ch.lqi) / LQIScale,
			TxSuccess: float64(ch.txSuccess) / BinaryScale,
		}
	}
	return ret, true
}

// Neighbors returns the addresses with statistics
func (c *Collector) Neighbors() []protocol.LinkAddr {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := make([]protocol.LinkAddr, 0, len(c.neighbors))
	for addr := range c.neighbors {
		ret = append(ret, addr)
	}
	return ret
}

// Global returns the node wide statistics
func (c *Collector) Global() Global {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := Global{
		MaxSyncError:    c.maxSyncError,
		Disassociations: c.disassociations,
	}
	for i := range c.noise {
		ret.NoiseRSSI[i] = float64(c.noise[i]) / RSSIScale
		ret.ChannelFree[i] = float64(c.free[i]) / BinaryScale
	}
	return ret
}
