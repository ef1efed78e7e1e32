package storagetest

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
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/storage"
)

func testSchedule(neighbor protocol.LinkAddr) []schedule.Slotframe {
	return []schedule.Slotframe{
		{
			Handle: 0,
			Length: 7,
			Cells: []schedule.Cell{
				{
					Handle:   0,
					Timeslot: 0,
					Options:  schedule.OptionTX | schedule.OptionRX | schedule.OptionShared | schedule.OptionTimeKeeping,
					Type:     schedule.LinkAdvertising,
					Neighbor: protocol.BroadcastAddr,
				},
			},
		},
		{
			Handle: 1,
			Length: 101,
			Cells: []schedule.Cell{
				{Handle: 1, Timeslot: 3, ChannelOffset: 2, Options: schedule.OptionTX, Neighbor: neighbor},
				{Handle: 1, Timeslot: 50, ChannelOffset: 9, Options: schedule.OptionRX, Neighbor: neighbor},
			},
		},
	}
}

func sameSchedule(a, b []schedule.Slotframe) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Handle != b[i].Handle || a[i].Length != b[i].Length || len(a[i].Cells) != len(b[i].Cells) {
			return false
		}
		for j := range a[i].Cells {
			if a[i].Cells[j] != b[i].Cells[j] {
				return false
			}
		}
	}
	return true
}

func testScheduleStorage(s storage.ScheduleStorage, t *testing.T) {
	node := makeRandomAddr()
	neighbor := makeRandomAddr()

	if _, err := s.Get(node); err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound for unknown node but got %v", err)
	}

	frames := testSchedule(neighbor)
	if err := s.Put(node, frames); err != nil {
		t.Fatalf("Got error storing schedule: %v", err)
	}
	stored, err := s.Get(node)
	if err != nil {
		t.Fatalf("Got error retrieving schedule: %v", err)
	}
	if !sameSchedule(frames, stored) {
		t.Fatalf("Stored schedule differs: %+v != %+v", stored, frames)
	}

	// Put replaces the existing schedule
	frames[1].Cells = frames[1].Cells[:1]
	if err := s.Put(node, frames); err != nil {
		t.Fatalf("Got error replacing schedule: %v", err)
	}
	stored, err = s.Get(node)
	if err != nil || !sameSchedule(frames, stored) {
		t.Fatalf("Schedule wasn't replaced: %+v (err=%v)", stored, err)
	}

	// Empty schedules are valid
	other := makeRandomAddr()
	if err := s.Put(other, nil); err != nil {
		t.Fatalf("Got error storing empty schedule: %v", err)
	}
	if stored, err := s.Get(other); err != nil || len(stored) != 0 {
		t.Fatalf("Expected empty schedule, got %+v (err=%v)", stored, err)
	}

	if err := s.Delete(node); err != nil {
		t.Fatalf("Got error deleting schedule: %v", err)
	}
	if err := s.Delete(node); err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound when deleting twice but got %v", err)
	}
	if _, err := s.Get(node); err != storage.ErrNotFound {
		t.Fatal("Schedule should be removed")
	}
	s.Delete(other)
}
