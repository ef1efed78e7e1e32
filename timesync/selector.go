package timesync

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
)

// DefaultMinEBCount is the number of beacons a neighbor must send before it
// is considered as a time source
const DefaultMinEBCount = 2

type candidate struct {
	priority uint8
	beacons  int
}

// Selector picks the time source among the neighbors that send enhanced
// beacons. The best candidate is the one with the lowest join priority that
// has been heard at least MinEBCount times. Ties go to the neighbor heard
// most often. It is used by the background domain only.
type Selector struct {
	mutex      *sync.Mutex
	minEBCount int
	candidates map[protocol.LinkAddr]*candidate
}

// NewSelector creates a selector
func NewSelector(minEBCount int) *Selector {
	if minEBCount < 1 {
		minEBCount = 1
	}
	return &Selector{
		mutex:      &sync.Mutex{},
		minEBCount: minEBCount,
		candidates: make(map[protocol.LinkAddr]*candidate),
	}
}

// Observe records an enhanced beacon from the neighbor
func (s *Selector) Observe(addr protocol.LinkAddr, joinPriority uint8) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.candidates[addr]
	if !ok {
		c = &candidate{}
		s.candidates[addr] = c
	}
	if c.priority != joinPriority {
		// Priority changes restart the count
		c.beacons = 0
	}
	c.priority = joinPriority
	c.beacons++
}

// Remove forgets the neighbor
func (s *Selector) Remove(addr protocol.LinkAddr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.candidates, addr)
}

// Best returns the preferred time source
func (s *Selector) Best() (protocol.LinkAddr, uint8, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var best *candidate
	bestAddr := protocol.NullAddr
	for addr, c := range s.candidates {
		if c.beacons < s.minEBCount || c.priority == Unsynchronized {
			continue
		}
		if best == nil || c.priority < best.priority ||
			(c.priority == best.priority && c.beacons > best.beacons) ||
			(c.priority == best.priority && c.beacons == best.beacons && addr.ToUint64() < bestAddr.ToUint64()) {
			best = c
			bestAddr = addr
		}
	}
	if best == nil {
		return protocol.NullAddr, 0, false
	}
	return bestAddr, best.priority, true
}

// ShouldSwitch returns the new time source if a candidate is strictly
// better than the current source's priority
func (s *Selector) ShouldSwitch(t *Tracker) (protocol.LinkAddr, uint8, bool) {
	if t.IsCoordinator() {
		return protocol.NullAddr, 0, false
	}
	addr, priority, ok := s.Best()
	if !ok {
		return protocol.NullAddr, 0, false
	}
	if t.IsTimeSource(addr) {
		return protocol.NullAddr, 0, false
	}
	current := t.JoinPriority()
	if current != Unsynchronized && priority+1 >= current {
		return protocol.NullAddr, 0, false
	}
	return addr, priority, true
}

// Len returns the number of candidates
func (s *Selector) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.candidates)
}
