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
import "github.com/ExploratoryEngineering/tsch/protocol"

// MinimalHandle is the handle of the 6TiSCH minimal slotframe
const MinimalHandle = 0

// DefaultSlotframeLength is the default length of the minimal slotframe
const DefaultSlotframeLength = 7

// MinimalOptions are the link options for the single minimal cell
const MinimalOptions = OptionTX | OptionRX | OptionShared | OptionTimeKeeping

// InitMinimal installs the 6TiSCH minimal schedule (RFC 8180): one
// slotframe with a single shared broadcast advertising cell at timeslot 0,
// channel offset 0. Any existing schedule is removed.
func InitMinimal(t *Table, length uint16) error {
	return t.Apply(func(b *Batch) error {
		b.Clear()
		if err := b.AddSlotframe(MinimalHandle, length); err != nil {
			return err
		}
		return b.AddCell(Cell{
			Handle:   MinimalHandle,
			Timeslot: 0,
			Options:  MinimalOptions,
			Type:     LinkAdvertising,
			Neighbor: protocol.BroadcastAddr,
		})
	})
}
