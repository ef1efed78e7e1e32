package processor

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
	"encoding/hex"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/server"
)

// MACProcessor is the process responsible for processing the decoded frames.
// Enhanced beacons are passed on to the scheduler, 6P messages go to the
// 6P engine and data payloads are published as events.
type MACProcessor struct {
	input    <-chan server.RxFrame // Input from decoder
	notifier chan server.Beacon    // Notifier output; notifies scheduler about new beacons
	context  *server.Context       // Node context
}

func (m *MACProcessor) process(val server.RxFrame) {
	f := &val.Frame
	rec := &val.Record
	if !f.Source.IsNull() {
		if err := m.context.Stats.RxPacket(f.Source, rec.RSSI, val.LQI(), rec.Channel); err != nil {
			logging.Debug("Unable to update link stats for %s: %v", f.Source, err)
		}
	}
	monitoring.RxFrames.Increment()

	if f.IsEnhancedBeacon() && !f.Source.IsNull() {
		monitoring.EBReceived.Increment()
		b := server.Beacon{
			Source:       f.Source,
			ASN:          f.Sync.ASN,
			JoinPriority: f.Sync.JoinPriority,
			Timestamp:    rec.Timestamp,
			Scanning:     rec.Scanning,
		}
		monitoring.Stopwatch(monitoring.MACProcessorChannelOut, func() {
			m.notifier <- b
		})
	}
	if rec.Scanning {
		// Nothing but the beacon is of interest until the node has joined
		return
	}
	if len(f.SixP) > 0 {
		if f.Source.IsNull() {
			logging.Info("Ignoring 6P message without a source address")
		} else if msg, ok := m.unsecure(f.Source, f.SixP); ok {
			monitoring.Stopwatch(monitoring.TimeSixPInput, func() {
				m.context.SixP.Input(f.Source, msg)
			})
		}
	}
	if f.Type == protocol.FrameData && len(f.Payload) > 0 {
		if payload, ok := m.unsecure(f.Source, f.Payload); ok {
			m.context.Router.Publish(events.NewData(m.context.Address, f.Source, rec.ASN, hex.EncodeToString(payload)))
		}
	}
}

func (m *MACProcessor) unsecure(source protocol.LinkAddr, data []byte) ([]byte, bool) {
	ret, err := m.context.Security.Unsecure(source, data)
	if err != nil {
		logging.Info("Dropping payload from %s: %v", source, err)
		monitoring.RxUnsecured.Increment()
		return nil, false
	}
	return ret, true
}

// Start launches the MAC processor. When the input channel is closed the
// method will stop and the notifier channel will be closed.
func (m *MACProcessor) Start() {
	for v := range m.input {
		start := time.Now()
		m.process(v)
		monitoring.Elapsed(monitoring.TimeMACProcessor, start)
		monitoring.MACProcessor.Increment()
	}
	logging.Debug("Input channel for MAC processor closed. Terminating")
	close(m.notifier)
}

// BeaconNotifier returns the output channel for the MAC processor. A new
// message is sent on the channel every time an enhanced beacon is received.
func (m *MACProcessor) BeaconNotifier() <-chan server.Beacon {
	return m.notifier
}

// NewMACProcessor creates a new MAC processor instance.
func NewMACProcessor(context *server.Context, input <-chan server.RxFrame) *MACProcessor {
	return &MACProcessor{
		context:  context,
		input:    input,
		notifier: make(chan server.Beacon),
	}
}
