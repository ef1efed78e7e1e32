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
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/slot"
)

// Decoder is the process that decodes the frames received by the slot
// engine into go structs.
type Decoder struct {
	input   <-chan slot.Received
	output  chan server.RxFrame
	context *server.Context
}

// Start launches the decoder. It will terminate when the input channel
// is closed. On exit the output channel will be closed.
func (d *Decoder) Start() {
	for rec := range d.input {
		start := time.Now()
		msg := server.RxFrame{Record: rec, ReceivedAt: start}
		if err := msg.Frame.UnmarshalBinary(rec.Frame()); err != nil {
			logging.Info("Error decoding frame received at ASN %s: %v", rec.ASN, err)
			monitoring.RxInvalid.Increment()
			continue
		}
		monitoring.GetNeighborCounters(msg.Frame.Source).In()
		monitoring.Elapsed(monitoring.TimeDecoder, start)
		monitoring.Stopwatch(monitoring.DecoderChannelOut, func() {
			d.output <- msg
		})
		monitoring.Decoder.Increment()
	}
	logging.Debug("Input channel for Decoder closed. Terminating")
	close(d.output)
}

// Output returns the output channel from the decoder. This channel will receive
// a message every time a frame is successfully decoded.
func (d *Decoder) Output() <-chan server.RxFrame {
	return d.output
}

// NewDecoder creates a new decoder.
func NewDecoder(context *server.Context, input <-chan slot.Received) *Decoder {
	return &Decoder{
		input:   input,
		output:  make(chan server.RxFrame),
		context: context,
	}
}
