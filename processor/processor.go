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
	"context"
	"sync"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/server"
)

// Pipeline is the background processing pipeline for a node. Each step in
// the pipeline runs as a single goroutine and channels forward the records
// between the steps. The slot engine runs in the timer context and only
// talks to the pipeline through the handoff rings.
//
// The pipeline is roughly built like this:
//
//    Slot engine => Ring interface -> Decoder -> MAC processor -> Scheduler
//                                 \-> TX processor
//
// The MAC processor feeds 6P messages to the 6P engine and the scheduler
// picks up the 6P results.
type Pipeline struct {
	Rings        *RingInterface
	Decoder      *Decoder
	MACProcessor *MACProcessor
	Scheduler    *Scheduler
	TxProcessor  *TxProcessor
	context      *server.Context
	mutex        *sync.Mutex
	cancel       context.CancelFunc
}

// Start launches the pipeline and the 6P engine, then joins the network
// (or starts it if this node is the coordinator). The 6P engine stops when
// the context is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	ctx, p.cancel = context.WithCancel(ctx)
	go p.context.SixP.Run(ctx)
	go p.Decoder.Start()
	go p.MACProcessor.Start()
	go p.Scheduler.Start()
	go p.TxProcessor.Start()
	p.Rings.Start()
	return p.Scheduler.Join()
}

// Stop stops the slot engine and the pipeline. The stages terminate when
// their input channels are closed.
func (p *Pipeline) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.context.Engine.Stop(); err != nil {
		logging.Warning("Unable to stop slot engine: %v", err)
	}
	p.Rings.Stop()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// NewPipeline creates a new pipeline for the node context.
func NewPipeline(context *server.Context) *Pipeline {
	ret := Pipeline{context: context, mutex: &sync.Mutex{}}

	logging.Debug("Creating ring interface...")
	ret.Rings = NewRingInterface(context, DefaultPollInterval)

	logging.Debug("Creating decoder...")
	ret.Decoder = NewDecoder(context, ret.Rings.RxOutput())

	logging.Debug("Creating MAC processor...")
	ret.MACProcessor = NewMACProcessor(context, ret.Decoder.Output())

	logging.Debug("Creating scheduler...")
	ret.Scheduler = NewScheduler(context, ret.MACProcessor.BeaconNotifier())

	logging.Debug("Creating TX processor...")
	ret.TxProcessor = NewTxProcessor(context, ret.Rings.TxOutput())

	return &ret
}
