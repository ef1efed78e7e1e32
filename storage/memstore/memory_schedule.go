package memstore

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
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/storage"
)

type memoryScheduleStorage struct {
	latency
	mutex     *sync.Mutex
	schedules map[protocol.LinkAddr][]schedule.Slotframe
}

// NewMemoryScheduleStorage returns a memory-backed schedule storage
func NewMemoryScheduleStorage(min, max time.Duration) storage.ScheduleStorage {
	return &memoryScheduleStorage{
		latency:   latency{min: min, max: max},
		mutex:     &sync.Mutex{},
		schedules: make(map[protocol.LinkAddr][]schedule.Slotframe),
	}
}

// copyFrames makes a deep copy so callers can't modify the stored cells
func copyFrames(frames []schedule.Slotframe) []schedule.Slotframe {
	ret := make([]schedule.Slotframe, len(frames))
	for i, sf := range frames {
		ret[i] = schedule.Slotframe{
			Handle: sf.Handle,
			Length: sf.Length,
			Cells:  append([]schedule.Cell(nil), sf.Cells...),
		}
	}
	return ret
}

func (m *memoryScheduleStorage) Put(node protocol.LinkAddr, frames []schedule.Slotframe) error {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.schedules[node] = copyFrames(frames)
	return nil
}

func (m *memoryScheduleStorage) Get(node protocol.LinkAddr) ([]schedule.Slotframe, error) {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	frames, ok := m.schedules[node]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyFrames(frames), nil
}

func (m *memoryScheduleStorage) Delete(node protocol.LinkAddr) error {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.schedules[node]; !ok {
		return storage.ErrNotFound
	}
	delete(m.schedules, node)
	return nil
}

func (m *memoryScheduleStorage) Close() {
	// Nothing to do
}
