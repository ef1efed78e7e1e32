package schedule

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
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ExploratoryEngineering/tsch/protocol"
)

// Default capacities
const (
	DefaultMaxSlotframes = 4
	DefaultMaxLinks      = 32
)

// snapshot is one published version of the schedule. Nothing in a snapshot
// is modified after it has been stored in the table.
type snapshot struct {
	version uint64
	frames  []*Slotframe // sorted on handle
	links   int
}

func (s *snapshot) find(handle uint16) int {
	i := sort.Search(len(s.frames), func(i int) bool { return s.frames[i].Handle >= handle })
	if i < len(s.frames) && s.frames[i].Handle == handle {
		return i
	}
	return -1
}

// cellRange returns the index range of the cells in the timeslot
func cellRange(cells []Cell, timeslot uint16) (int, int) {
	lo := sort.Search(len(cells), func(i int) bool { return cells[i].Timeslot >= timeslot })
	hi := lo
	for hi < len(cells) && cells[hi].Timeslot == timeslot {
		hi++
	}
	return lo, hi
}

// Table is the TSCH schedule. Readers (the slot engine) never lock: they
// load the current snapshot with an atomic read. Writers are serialized with
// a mutex, build a modified copy of the affected slotframes and publish the
// result with a single atomic store. A slot that has resolved its cells keeps
// seeing that version until it completes.
type Table struct {
	mutex         *sync.Mutex
	current       atomic.Pointer[snapshot]
	maxSlotframes int
	maxLinks      int
}

// NewTable creates an empty schedule with fixed capacity
func NewTable(maxSlotframes, maxLinks int) *Table {
	ret := &Table{
		mutex:         &sync.Mutex{},
		maxSlotframes: maxSlotframes,
		maxLinks:      maxLinks,
	}
	ret.current.Store(&snapshot{})
	return ret
}

// Version returns the version of the current snapshot. It increases by one
// for every committed change.
func (t *Table) Version() uint64 {
	return t.current.Load().version
}

// Links returns the number of cells in the table
func (t *Table) Links() int {
	return t.current.Load().links
}

// Capacity returns the maximum number of cells
func (t *Table) Capacity() int {
	return t.maxLinks
}

// Resolve returns the cells in the timeslot. The returned slice is shared
// with the table and must not be modified. Calling Resolve twice without a
// change in between returns the same cells.
func (t *Table) Resolve(handle uint16, timeslot uint16) []Cell {
	s := t.current.Load()
	idx := s.find(handle)
	if idx < 0 {
		return nil
	}
	cells := s.frames[idx].Cells
	lo, hi := cellRange(cells, timeslot)
	return cells[lo:hi:hi]
}

// ActiveCells appends every cell that is active at the ASN to buf, ordered by
// slotframe handle. The slot engine passes a preallocated buffer so nothing
// is allocated in the slot path.
func (t *Table) ActiveCells(asn protocol.ASN, buf []Cell) []Cell {
	s := t.current.Load()
	for _, sf := range s.frames {
		lo, hi := cellRange(sf.Cells, sf.Timeslot(asn))
		buf = append(buf, sf.Cells[lo:hi]...)
	}
	return buf
}

// NextActive returns the number of slots from the ASN to the next timeslot
// that has at least one cell in any slotframe. It returns 0 if the schedule
// is empty.
func (t *Table) NextActive(asn protocol.ASN) uint64 {
	s := t.current.Load()
	best := uint64(0)
	for _, sf := range s.frames {
		if len(sf.Cells) == 0 {
			continue
		}
		ts := sf.Timeslot(asn)
		i := sort.Search(len(sf.Cells), func(i int) bool { return sf.Cells[i].Timeslot > ts })
		var d uint64
		if i < len(sf.Cells) {
			d = uint64(sf.Cells[i].Timeslot - ts)
		} else {
			d = uint64(sf.Length-ts) + uint64(sf.Cells[0].Timeslot)
		}
		if best == 0 || d < best {
			best = d
		}
	}
	return best
}

// Slotframe returns a copy of the slotframe
func (t *Table) Slotframe(handle uint16) (Slotframe, error) {
	s := t.current.Load()
	idx := s.find(handle)
	if idx < 0 {
		return Slotframe{}, ErrNoSlotframe
	}
	return copySlotframe(s.frames[idx]), nil
}

// Snapshot returns a deep copy of all slotframes
func (t *Table) Snapshot() []Slotframe {
	s := t.current.Load()
	ret := make([]Slotframe, len(s.frames))
	for i, sf := range s.frames {
		ret[i] = copySlotframe(sf)
	}
	return ret
}

// Restore replaces the schedule with the slotframes. Nothing is changed if
// one of the slotframes or cells is rejected.
func (t *Table) Restore(frames []Slotframe) error {
	return t.Apply(func(b *Batch) error {
		b.Clear()
		for _, sf := range frames {
			if err := b.AddSlotframe(sf.Handle, sf.Length); err != nil {
				return err
			}
			for _, c := range sf.Cells {
				c.Handle = sf.Handle
				if err := b.AddCell(c); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Apply runs fn on a working copy of the schedule. If fn returns nil the
// copy is published atomically, otherwise the table is left untouched.
func (t *Table) Apply(fn func(b *Batch) error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	cur := t.current.Load()
	b := &Batch{
		frames:        append([]*Slotframe(nil), cur.frames...),
		owned:         make(map[uint16]bool),
		links:         cur.links,
		maxSlotframes: t.maxSlotframes,
		maxLinks:      t.maxLinks,
	}
	if err := fn(b); err != nil {
		return err
	}
	if !b.dirty {
		return nil
	}
	t.current.Store(&snapshot{version: cur.version + 1, frames: b.frames, links: b.links})
	return nil
}

// AddSlotframe adds an empty slotframe
func (t *Table) AddSlotframe(handle uint16, length uint16) error {
	return t.Apply(func(b *Batch) error {
		return b.AddSlotframe(handle, length)
	})
}

// RemoveSlotframe removes the slotframe and all of its cells
func (t *Table) RemoveSlotframe(handle uint16) error {
	return t.Apply(func(b *Batch) error {
		return b.RemoveSlotframe(handle)
	})
}

// AddCell adds a cell to its slotframe. See Batch.AddCell.
func (t *Table) AddCell(c Cell) error {
	return t.Apply(func(b *Batch) error {
		return b.AddCell(c)
	})
}

// RemoveCell removes the neighbor's cell in the timeslot
func (t *Table) RemoveCell(handle uint16, timeslot uint16, neighbor protocol.LinkAddr) error {
	return t.Apply(func(b *Batch) error {
		_, err := b.RemoveCell(handle, timeslot, neighbor)
		return err
	})
}

func copySlotframe(sf *Slotframe) Slotframe {
	return Slotframe{
		Handle: sf.Handle,
		Length: sf.Length,
		Cells:  append([]Cell(nil), sf.Cells...),
	}
}

// Batch is a working copy of the schedule used inside Table.Apply. A
// slotframe is copied the first time the batch modifies it.
type Batch struct {
	frames        []*Slotframe
	owned         map[uint16]bool
	links         int
	maxSlotframes int
	maxLinks      int
	dirty         bool
}

func (b *Batch) find(handle uint16) int {
	s := snapshot{frames: b.frames}
	return s.find(handle)
}

func (b *Batch) own(idx int) *Slotframe {
	sf := b.frames[idx]
	if !b.owned[sf.Handle] {
		c := copySlotframe(sf)
		sf = &c
		b.frames[idx] = sf
		b.owned[sf.Handle] = true
	}
	b.dirty = true
	return sf
}

// Links returns the number of cells in the working copy
func (b *Batch) Links() int {
	return b.links
}

// Free returns the number of cells that can be added before the table is full
func (b *Batch) Free() int {
	return b.maxLinks - b.links
}

// Clear removes everything
func (b *Batch) Clear() {
	b.frames = nil
	b.links = 0
	b.owned = make(map[uint16]bool)
	b.dirty = true
}

// Slotframe returns the working copy of the slotframe. The result must not
// be modified.
func (b *Batch) Slotframe(handle uint16) (*Slotframe, error) {
	idx := b.find(handle)
	if idx < 0 {
		return nil, ErrNoSlotframe
	}
	return b.frames[idx], nil
}

// AddSlotframe adds an empty slotframe to the working copy
func (b *Batch) AddSlotframe(handle uint16, length uint16) error {
	if length == 0 {
		return ErrInvalidSlotframe
	}
	if b.find(handle) >= 0 {
		return ErrDuplicateSlotframe
	}
	if len(b.frames) >= b.maxSlotframes {
		return ErrCapacityExceeded
	}
	sf := &Slotframe{Handle: handle, Length: length}
	i := sort.Search(len(b.frames), func(i int) bool { return b.frames[i].Handle > handle })
	b.frames = append(b.frames, nil)
	copy(b.frames[i+1:], b.frames[i:])
	b.frames[i] = sf
	b.owned[handle] = true
	b.dirty = true
	return nil
}

// RemoveSlotframe removes a slotframe from the working copy
func (b *Batch) RemoveSlotframe(handle uint16) error {
	idx := b.find(handle)
	if idx < 0 {
		return ErrNoSlotframe
	}
	b.links -= len(b.frames[idx].Cells)
	b.frames = append(b.frames[:idx:idx], b.frames[idx+1:]...)
	delete(b.owned, handle)
	b.dirty = true
	return nil
}

// AddCell adds a cell. A cell for the same neighbor in the same timeslot is
// replaced unless that would leave a non-shared cell next to another
// neighbor's cell. ErrDuplicateCell is returned if another neighbor has the
// timeslot and either cell is non-shared, ErrCapacityExceeded if the table
// is full.
func (b *Batch) AddCell(c Cell) error {
	idx := b.find(c.Handle)
	if idx < 0 {
		return ErrNoSlotframe
	}
	sf := b.frames[idx]
	if c.Timeslot >= sf.Length || c.Options&(OptionTX|OptionRX) == 0 {
		return ErrInvalidCell
	}
	lo, hi := cellRange(sf.Cells, c.Timeslot)
	for i := lo; i < hi; i++ {
		existing := sf.Cells[i]
		if existing.Neighbor == c.Neighbor {
			if !c.IsShared() && hi-lo > 1 {
				return ErrDuplicateCell
			}
			sf = b.own(idx)
			sf.Cells[i] = c
			return nil
		}
		if !existing.IsShared() || !c.IsShared() {
			return ErrDuplicateCell
		}
	}
	if b.links >= b.maxLinks {
		return ErrCapacityExceeded
	}
	sf = b.own(idx)
	sf.Cells = append(sf.Cells, Cell{})
	copy(sf.Cells[hi+1:], sf.Cells[hi:])
	sf.Cells[hi] = c
	b.links++
	return nil
}

// RemoveCell removes the neighbor's cell in the timeslot and returns it
func (b *Batch) RemoveCell(handle uint16, timeslot uint16, neighbor protocol.LinkAddr) (Cell, error) {
	idx := b.find(handle)
	if idx < 0 {
		return Cell{}, ErrNotFound
	}
	lo, hi := cellRange(b.frames[idx].Cells, timeslot)
	for i := lo; i < hi; i++ {
		if b.frames[idx].Cells[i].Neighbor == neighbor {
			sf := b.own(idx)
			removed := sf.Cells[i]
			sf.Cells = append(sf.Cells[:i], sf.Cells[i+1:]...)
			b.links--
			return removed, nil
		}
	}
	return Cell{}, ErrNotFound
}

// Resolve returns the cells in the timeslot of the working copy
func (b *Batch) Resolve(handle uint16, timeslot uint16) []Cell {
	idx := b.find(handle)
	if idx < 0 {
		return nil
	}
	lo, hi := cellRange(b.frames[idx].Cells, timeslot)
	return b.frames[idx].Cells[lo:hi:hi]
}

// CellsFor returns the neighbor's cells in the slotframe that have all of
// the options set
func (b *Batch) CellsFor(handle uint16, neighbor protocol.LinkAddr, options LinkOptions) []Cell {
	idx := b.find(handle)
	if idx < 0 {
		return nil
	}
	var ret []Cell
	for _, c := range b.frames[idx].Cells {
		if c.Neighbor == neighbor && c.Options.Has(options) {
			ret = append(ret, c)
		}
	}
	return ret
}
