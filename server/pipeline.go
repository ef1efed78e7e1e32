package server

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
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/slot"
)

// Pipeline data structures used by the processing stages

// RxFrame is a frame received by the slot engine along with the decoded
// MAC frame
type RxFrame struct {
	Record     slot.Received  // The raw record from the slot engine
	Frame      protocol.Frame // The decoded frame. Set by the decoder.
	ReceivedAt time.Time      // When the record left the handoff ring
}

// LQI is a link quality estimate from the RSSI since the radios don't
// report one. -100 dBm and below maps to 0, -20 dBm and above to 255.
func (r *RxFrame) LQI() uint8 {
	rssi := int(r.Record.RSSI)
	switch {
	case rssi <= -100:
		return 0
	case rssi >= -20:
		return 255
	}
	return uint8((rssi + 100) * 255 / 80)
}

// Beacon is an enhanced beacon handed to the scheduler. Beacons received
// while scanning are association candidates; the others feed the time
// source selection.
type Beacon struct {
	Source       protocol.LinkAddr
	ASN          protocol.ASN
	JoinPriority uint8
	Timestamp    rtimer.Ticks // Start of frame, local time
	Scanning     bool
}
