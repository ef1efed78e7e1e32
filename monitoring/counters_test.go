package monitoring

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
	"expvar"
	"testing"
)

func TestCounterIncrement(t *testing.T) {
	before := TxOK.Total()
	TxOK.Increment()
	TxOK.Add(2)
	TxOK.Add(0)
	if TxOK.Total() != before+3 {
		t.Fatalf("Expected total %d, got %d", before+3, TxOK.Total())
	}
	if expvar.Get("tx.ok.total") == nil || expvar.Get("tx.ok.minute") == nil {
		t.Fatal("Counter isn't published")
	}

	for _, c := range []*timeseriesCounter{
		TxNoAck, TxCollision, TxErr, TxDropped, RxFrames, RxInvalid, RxDropped, SlotsDropped,
		ClockAnomalies, RadioFaults, LogDropped, EBSent, EBReceived, KeepaliveSent, Associations,
		Desyncs, SourceSwitches, SixPInitiated, SixPCompleted, SixPFailed, SixPTimeouts,
		StorageFailed, RingIn, Decoder, MACProcessor, TxProcessor} {
		c.Increment()
	}
}

func TestHistogramCounter(t *testing.T) {
	SyncCorrection.Add(3)
	SyncCorrection.Add(5)
	if av := SyncCorrection.Averages(); av.Count < 2 || av.Max < 5 {
		t.Fatalf("Unexpected averages %+v", av)
	}
	if expvar.Get("sync.correction.histogram") == nil {
		t.Fatal("Histogram isn't published")
	}
	for _, h := range []*histogramCounter{
		DecoderChannelOut, MACProcessorChannelOut, TimeDecoder, TimeMACProcessor,
		TimeSixPInput, TimePersist, TxAttempts} {
		Stopwatch(h, func() {})
	}
}

func TestPromName(t *testing.T) {
	if n := promName("process.ring.in"); n != "process_ring_in" {
		t.Fatalf("Unexpected name %s", n)
	}
}
