package sixp

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
	"github.com/ExploratoryEngineering/tsch/schedule"
)

// SchedulingFunction decides which cells are negotiated. The engine runs
// the protocol; the scheduling function owns the slotframe the negotiated
// cells are placed in and picks candidate cells.
type SchedulingFunction interface {
	// SFID is the scheduling function identifier carried in every message
	SFID() uint8
	// Handle is the slotframe the negotiated cells live in
	Handle() uint16
	// Timeout is the transaction timeout
	Timeout() time.Duration
	// Candidates returns up to n cells to propose in an ADD or RELOCATE.
	// taken reports timeslots that are reserved by other transactions.
	Candidates(sf schedule.Slotframe, n int, taken func(timeslot uint16) bool) []protocol.SixPCell
}

// SimpleSFID is the SFID of SimpleSF. It is in the experimental range.
const SimpleSFID = 0xf0

// Defaults for SimpleSF
const (
	DefaultSimpleHandle  = 1
	DefaultSimpleLength  = 17
	DefaultSimpleTimeout = 30 * time.Second
	// DefaultExtraCandidates is the number of cells proposed in addition
	// to the requested number so the peer has something to choose from
	DefaultExtraCandidates = 2
)

// SimpleSF is a minimal scheduling function. It proposes random free
// timeslots with random channel offsets in its own slotframe.
type SimpleSF struct {
	handle   uint16
	length   uint16
	channels uint16
	timeout  time.Duration
	extra    int
	mutex    *sync.Mutex
	rand     *rand.Rand
}

// NewSimpleSF creates the scheduling function. The channel offsets are
// picked in the range [0, channels).
func NewSimpleSF(handle, length, channels uint16, timeout time.Duration, seed int64) *SimpleSF {
	if channels == 0 {
		channels = 1
	}
	return &SimpleSF{
		handle:   handle,
		length:   length,
		channels: channels,
		timeout:  timeout,
		extra:    DefaultExtraCandidates,
		mutex:    &sync.Mutex{},
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// NewDefaultSimpleSF creates a SimpleSF with the default parameters
func NewDefaultSimpleSF(seed int64) *SimpleSF {
	return NewSimpleSF(DefaultSimpleHandle, DefaultSimpleLength, 4, DefaultSimpleTimeout, seed)
}

// SFID returns SimpleSFID
func (s *SimpleSF) SFID() uint8 {
	return SimpleSFID
}

// Handle returns the slotframe handle
func (s *SimpleSF) Handle() uint16 {
	return s.handle
}

// Timeout returns the transaction timeout
func (s *SimpleSF) Timeout() time.Duration {
	return s.timeout
}

// Install adds the slotframe to the table unless it exists
func (s *SimpleSF) Install(t *schedule.Table) error {
	err := t.AddSlotframe(s.handle, s.length)
	if err == schedule.ErrDuplicateSlotframe {
		return nil
	}
	return err
}

// Candidates picks n plus a few extra free timeslots in random order
func (s *SimpleSF) Candidates(sf schedule.Slotframe, n int, taken func(uint16) bool) []protocol.SixPCell {
	used := make(map[uint16]bool)
	for _, c := range sf.Cells {
		used[c.Timeslot] = true
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var ret []protocol.SixPCell
	want := n + s.extra
	for _, i := range s.rand.Perm(int(sf.Length)) {
		if len(ret) >= want {
			break
		}
		ts := uint16(i)
		if used[ts] || (taken != nil && taken(ts)) {
			continue
		}
		ret = append(ret, protocol.SixPCell{
			SlotOffset:    ts,
			ChannelOffset: uint16(s.rand.Intn(int(s.channels))),
		})
	}
	return ret
}
