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
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/slot"
)

// TxProcessor handles the transmission results from the slot engine. It
// updates the link statistics and runs the completion callbacks for
// packets that have left the queue.
type TxProcessor struct {
	input   <-chan slot.TxResult
	context *server.Context
	done    chan struct{}
}

func (t *TxProcessor) process(r slot.TxResult) {
	p := r.Packet
	if p == nil {
		logging.Warning("TX result at ASN %s without a packet", r.ASN)
		return
	}
	if !p.Dest.IsBroadcast() {
		if err := t.context.Stats.TxPacket(p.Dest, r.Status, r.Channel); err != nil {
			logging.Debug("Unable to update link stats for %s: %v", p.Dest, err)
		}
	}
	switch r.Status {
	case queue.TxOK:
		monitoring.TxOK.Increment()
	case queue.TxNoAck:
		monitoring.TxNoAck.Increment()
	case queue.TxCollision:
		monitoring.TxCollision.Increment()
	default:
		monitoring.TxErr.Increment()
	}
	monitoring.GetNeighborCounters(p.Dest).Out()
	if !r.Done {
		return
	}
	monitoring.TxAttempts.Add(float64(r.Transmissions))
	if r.Status != queue.TxOK {
		logging.Debug("Dropped packet with seq %d to %s after %d transmission(s): %s",
			p.SeqNum, p.Dest, r.Transmissions, r.Status)
		monitoring.TxDropped.Increment()
	}
	if p.Sent != nil {
		p.Sent(p)
	}
}

// Start launches the TX processor. It terminates when the input channel
// is closed.
func (t *TxProcessor) Start() {
	for r := range t.input {
		t.process(r)
		monitoring.TxProcessor.Increment()
	}
	logging.Debug("Input channel for TX processor closed. Terminating")
	close(t.done)
}

// Done returns a channel that is closed when the processor terminates
func (t *TxProcessor) Done() <-chan struct{} {
	return t.done
}

// NewTxProcessor creates a new TX processor
func NewTxProcessor(context *server.Context, input <-chan slot.TxResult) *TxProcessor {
	return &TxProcessor{
		input:   input,
		context: context,
		done:    make(chan struct{}),
	}
}
