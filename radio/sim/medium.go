package sim

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
	"math/rand"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

//
// Simulated radio medium on top of a virtual clock. A frame is received by
// every radio that is on, tuned to the same channel and idle when the first
// bit goes on the air. Overlapping transmissions on a channel destroy each
// other at the receivers that hear both. Each directed link has a packet
// reception ratio (PRR).
//

// DefaultRSSI is the signal strength reported for received frames
const DefaultRSSI = -60

type transmission struct {
	src     *Radio
	channel uint8
	data    []byte
	start   uint64
	end     uint64
}

type reception struct {
	tx       *transmission
	collided bool
	ts       rtimer.Ticks
}

type linkKey struct {
	from, to int
}

// Medium is the shared radio channel
type Medium struct {
	clock      *rtimer.VirtualClock
	mutex      *sync.Mutex
	radios     []*Radio
	air        []*transmission
	prr        map[linkKey]float64
	defaultPRR float64
	rnd        *rand.Rand
	collisions uint64
	frames     uint64
}

// NewMedium creates a new medium. The seed makes packet loss repeatable.
func NewMedium(clock *rtimer.VirtualClock, seed int64) *Medium {
	return &Medium{
		clock:      clock,
		mutex:      &sync.Mutex{},
		prr:        make(map[linkKey]float64),
		defaultPRR: 1.0,
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

// AddRadio attaches a radio to the medium. The timer is the node's local
// clock and is used for receive timestamps.
func (m *Medium) AddRadio(timer *rtimer.VirtualTimer) *Radio {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	r := &Radio{
		medium:  m,
		timer:   timer,
		id:      len(m.radios),
		channel: radio.MinChannel,
	}
	m.radios = append(m.radios, r)
	return r
}

// SetDefaultPRR sets the reception ratio for links without an explicit
// value
func (m *Medium) SetDefaultPRR(prr float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.defaultPRR = prr
}

// SetPRR sets the reception ratio for frames sent by from and received by to
func (m *Medium) SetPRR(from, to *Radio, prr float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.prr[linkKey{from.id, to.id}] = prr
}

// Collisions returns the number of receptions destroyed by overlapping
// transmissions
func (m *Medium) Collisions() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.collisions
}

// Frames returns the number of frames sent on the medium
func (m *Medium) Frames() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.frames
}

func (m *Medium) linkPRR(from, to *Radio) float64 {
	if p, ok := m.prr[linkKey{from.id, to.id}]; ok {
		return p
	}
	return m.defaultPRR
}

func (m *Medium) transmit(src *Radio, frame []byte) {
	now := m.clock.Now()
	duration := time.Duration(protocol.PacketDuration(len(frame))) * time.Microsecond
	tx := &transmission{
		src:     src,
		channel: src.channel,
		data:    append([]byte{}, frame...),
		start:   now,
		end:     now + uint64(duration),
	}
	m.frames++
	src.txEnd = tx.end
	src.rx = nil
	for _, r := range m.radios {
		if r == src || !r.on || r.channel != tx.channel || r.txEnd > now {
			continue
		}
		if r.rx != nil && r.rx.tx.end > now {
			if !r.rx.collided {
				m.collisions++
			}
			r.rx.collided = true
			continue
		}
		r.rx = &reception{tx: tx, ts: r.timer.LocalAt(now)}
	}
	m.air = append(m.air, tx)
	m.clock.AfterFunc(duration, func() {
		m.complete(tx)
	})
}

func (m *Medium) complete(tx *transmission) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for i, t := range m.air {
		if t == tx {
			m.air = append(m.air[:i], m.air[i+1:]...)
			break
		}
	}
	for _, r := range m.radios {
		if r.rx == nil || r.rx.tx != tx {
			continue
		}
		rec := r.rx
		r.rx = nil
		if rec.collided || !r.on || r.channel != tx.channel {
			continue
		}
		if m.rnd.Float64() >= m.linkPRR(tx.src, r) {
			continue
		}
		r.pending = tx.data
		r.pendingTS = rec.ts
	}
}

func (m *Medium) busy(r *Radio) bool {
	now := m.clock.Now()
	for _, t := range m.air {
		if t.src != r && t.channel == r.channel && t.end > now {
			return true
		}
	}
	return false
}
