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
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/ring"
)

//
// Per-neighbor outgoing frame queues. The background domain adds packets
// and the slot engine peeks, reports and removes them, so every neighbor
// queue is a single producer/single consumer ring. Retransmissions and the
// CSMA backoff for shared cells live here; the slot engine only reports the
// outcome of each attempt.
//

// TxStatus is the outcome of one transmission attempt
type TxStatus uint8

// Transmission outcomes
const (
	TxPending = TxStatus(iota)
	TxOK
	TxNoAck
	TxCollision
	TxErr
)

// String returns the status name
func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxOK:
		return "ok"
	case TxNoAck:
		return "noack"
	case TxCollision:
		return "collision"
	default:
		return "err"
	}
}

// Defaults
const (
	DefaultPerNeighbor      = 8
	DefaultMaxNeighbors     = 16
	DefaultMaxTransmissions = 8
	DefaultMinBE            = 1
	DefaultMaxBE            = 5
)

var (
	// ErrQueueFull is returned when the neighbor's queue has no free slots
	ErrQueueFull = errors.New("queue is full")
	// ErrTooManyNeighbors is returned when the neighbor table is full
	ErrTooManyNeighbors = errors.New("too many neighbors")
	// ErrInvalidPacket is returned for packets without a frame
	ErrInvalidPacket = errors.New("invalid packet")
)

// Packet is an outgoing frame
type Packet struct {
	Frame            []byte
	Dest             protocol.LinkAddr
	SeqNum           uint8
	AckRequest       bool
	MaxTransmissions uint8
	Transmissions    uint8
	Status           TxStatus
	// SyncOffset is the offset of the sync IE in enhanced beacons
	SyncOffset int
	// Sent is called from the background domain when the packet leaves the
	// queue, either delivered or dropped
	Sent func(p *Packet)
}

// Neighbor is a queue of packets for one destination
type Neighbor struct {
	Addr    protocol.LinkAddr
	packets *ring.SPSC[*Packet]
	txLinks atomic.Int32

	// CSMA state. Only touched by the slot engine.
	backoffExponent uint8
	backoffWindow   uint16
}

// Len returns the number of queued packets
func (n *Neighbor) Len() int {
	return n.packets.Len()
}

// TxLinks returns the number of dedicated TX cells to the neighbor
func (n *Neighbor) TxLinks() int {
	return int(n.txLinks.Load())
}

// InBackoff returns true while the neighbor must skip shared cells
func (n *Neighbor) InBackoff() bool {
	return n.backoffWindow != 0
}

// Config holds the queue parameters
type Config struct {
	PerNeighbor  int
	MaxNeighbors int
	MinBE        uint8
	MaxBE        uint8
	Seed         int64
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		PerNeighbor:  DefaultPerNeighbor,
		MaxNeighbors: DefaultMaxNeighbors,
		MinBE:        DefaultMinBE,
		MaxBE:        DefaultMaxBE,
		Seed:         1,
	}
}

// Queue holds the neighbor queues
type Queue struct {
	mutex     *sync.Mutex // serializes the producers
	neighbors atomic.Pointer[[]*Neighbor]
	broadcast *Neighbor
	beacon    *Neighbor
	config    Config
	rnd       *rand.Rand // slot engine only
}

// New creates an empty queue
func New(config Config) *Queue {
	ret := &Queue{
		mutex:  &sync.Mutex{},
		config: config,
		rnd:    rand.New(rand.NewSource(config.Seed)),
	}
	ret.broadcast = ret.newNeighbor(protocol.BroadcastAddr)
	ret.beacon = ret.newNeighbor(protocol.NullAddr)
	list := []*Neighbor{}
	ret.neighbors.Store(&list)
	return ret
}

func (q *Queue) newNeighbor(addr protocol.LinkAddr) *Neighbor {
	return &Neighbor{
		Addr:            addr,
		packets:         ring.New[*Packet](q.config.PerNeighbor),
		backoffExponent: q.config.MinBE,
	}
}

// Neighbor returns the unicast neighbor queue for the address or nil
func (q *Queue) Neighbor(addr protocol.LinkAddr) *Neighbor {
	if addr.IsBroadcast() {
		return q.broadcast
	}
	for _, n := range *q.neighbors.Load() {
		if n.Addr == addr {
			return n
		}
	}
	return nil
}

// Neighbors returns the unicast neighbors
func (q *Queue) Neighbors() []*Neighbor {
	return *q.neighbors.Load()
}

// getOrAdd is called with the mutex held
func (q *Queue) getOrAdd(addr protocol.LinkAddr) (*Neighbor, error) {
	if n := q.Neighbor(addr); n != nil {
		return n, nil
	}
	current := *q.neighbors.Load()
	if len(current) >= q.config.MaxNeighbors {
		return nil, ErrTooManyNeighbors
	}
	n := q.newNeighbor(addr)
	list := append(append([]*Neighbor(nil), current...), n)
	q.neighbors.Store(&list)
	return n, nil
}

// Add queues a packet for its destination. This is called from the
// background domain.
func (q *Queue) Add(p *Packet) error {
	if p == nil || len(p.Frame) == 0 || p.SyncOffset != 0 {
		return ErrInvalidPacket
	}
	if p.MaxTransmissions == 0 {
		p.MaxTransmissions = DefaultMaxTransmissions
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	n, err := q.getOrAdd(p.Dest)
	if err != nil {
		return err
	}
	p.Status = TxPending
	if !n.packets.Put(p) {
		return ErrQueueFull
	}
	return nil
}

// AddBeacon queues an enhanced beacon. Only one beacon is queued at a time.
func (q *Queue) AddBeacon(p *Packet) error {
	if p == nil || len(p.Frame) == 0 || p.SyncOffset == 0 {
		return ErrInvalidPacket
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.beacon.Len() > 0 {
		return ErrQueueFull
	}
	p.MaxTransmissions = 1
	p.Status = TxPending
	if !q.beacon.packets.Put(p) {
		return ErrQueueFull
	}
	return nil
}

// BeaconPending returns true if a beacon is waiting for an advertising cell
func (q *Queue) BeaconPending() bool {
	return q.beacon.Len() > 0
}

// SetTxLinks sets the number of dedicated TX cells for the neighbor.
// Neighbors with dedicated cells don't use shared broadcast cells for unicast
// traffic.
func (q *Queue) SetTxLinks(addr protocol.LinkAddr, count int) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	n, err := q.getOrAdd(addr)
	if err != nil {
		return err
	}
	n.txLinks.Store(int32(count))
	return nil
}

// Total returns the number of packets in all queues
func (q *Queue) Total() int {
	total := q.broadcast.Len() + q.beacon.Len()
	for _, n := range *q.neighbors.Load() {
		total += n.Len()
	}
	return total
}

// Free returns the free space in the neighbor's queue
func (q *Queue) Free(addr protocol.LinkAddr) int {
	n := q.Neighbor(addr)
	if n == nil {
		return q.config.PerNeighbor
	}
	return n.packets.Free()
}

// Peek returns the first packet for the neighbor. On shared cells nothing
// is returned while the neighbor is backing off.
func (q *Queue) Peek(addr protocol.LinkAddr, shared bool) *Packet {
	n := q.Neighbor(addr)
	if n == nil {
		return nil
	}
	return q.peekNeighbor(n, shared)
}

func (q *Queue) peekNeighbor(n *Neighbor, shared bool) *Packet {
	if shared && n.InBackoff() {
		return nil
	}
	p, ok := n.packets.Peek()
	if !ok {
		return nil
	}
	return p
}

// PeekAny returns a unicast packet for any neighbor that has no dedicated
// TX cells. It is used on shared broadcast cells.
func (q *Queue) PeekAny(shared bool) *Packet {
	for _, n := range *q.neighbors.Load() {
		if n.txLinks.Load() > 0 {
			continue
		}
		if p := q.peekNeighbor(n, shared); p != nil {
			return p
		}
	}
	return nil
}

// PeekBeacon returns the queued enhanced beacon
func (q *Queue) PeekBeacon() *Packet {
	p, _ := q.beacon.packets.Peek()
	return p
}

// Report records the outcome of a transmission of the first packet in the
// destination's queue. It returns true when the packet has left the queue,
// either because it was delivered or because it ran out of attempts.
func (q *Queue) Report(p *Packet, shared bool, status TxStatus) bool {
	n := q.beacon
	if p.SyncOffset == 0 {
		if n = q.Neighbor(p.Dest); n == nil {
			return false
		}
	}
	if head, ok := n.packets.Peek(); !ok || head != p {
		return false
	}
	p.Transmissions++
	p.Status = status
	unicast := !p.Dest.IsBroadcast() && n != q.beacon

	done := false
	if status == TxOK {
		done = true
		n.packets.Get()
		if unicast && (shared || n.Len() == 0) {
			q.backoffReset(n)
		}
	} else {
		if p.Transmissions >= p.MaxTransmissions {
			done = true
			n.packets.Get()
		}
		if unicast && shared {
			q.backoffInc(n)
		}
	}
	return done
}

func (q *Queue) backoffReset(n *Neighbor) {
	n.backoffWindow = 0
	n.backoffExponent = q.config.MinBE
}

func (q *Queue) backoffInc(n *Neighbor) {
	if n.backoffExponent < q.config.MaxBE {
		n.backoffExponent++
	}
	// One extra since the window is decremented at the end of this slot
	n.backoffWindow = uint16(q.rnd.Intn(1<<n.backoffExponent)) + 1
}

// UpdateBackoff decrements the backoff windows after a shared cell to the
// destination. For broadcast cells it affects the neighbors without
// dedicated TX cells.
func (q *Queue) UpdateBackoff(dest protocol.LinkAddr) {
	broadcast := dest.IsBroadcast()
	for _, n := range *q.neighbors.Load() {
		if n.backoffWindow == 0 {
			continue
		}
		links := n.txLinks.Load()
		if (links == 0 && broadcast) || (links > 0 && n.Addr == dest) {
			n.backoffWindow--
		}
	}
}
