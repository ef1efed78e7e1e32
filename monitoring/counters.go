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
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tsch"

// promName converts an expvar name (dot separated) into a prometheus name
func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// timeseriesCounter is published both as expvar (per minute rate and total)
// and as a prometheus counter
type timeseriesCounter struct {
	name             string
	minuteTimeSeries *TimeSeries
	total            *expvar.Int
	counter          prometheus.Counter
}

func newTimeseriesCounter(name, help string) *timeseriesCounter {
	ret := &timeseriesCounter{
		name:             name,
		minuteTimeSeries: NewTimeSeries(Minutes),
		total:            expvar.NewInt(name + ".total"),
		counter: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      promName(name) + "_total",
			Help:      help,
		}),
	}
	expvar.Publish(name+".minute", ret.minuteTimeSeries)
	return ret
}

// Increment adds one to the counter
func (c *timeseriesCounter) Increment() {
	c.Add(1)
}

// Add adds n to the counter
func (c *timeseriesCounter) Add(n uint32) {
	if n == 0 {
		return
	}
	c.minuteTimeSeries.Add(n)
	c.total.Add(int64(n))
	c.counter.Add(float64(n))
}

// Total returns the total count
func (c *timeseriesCounter) Total() int64 {
	return c.total.Value()
}

// histogramCounter is published as an expvar histogram and average and as
// a prometheus histogram with the same power of two buckets.
type histogramCounter struct {
	name      string
	histogram *Histogram
	gauge     *AverageGauge
	observer  prometheus.Histogram
}

func newHistogramCounter(name, help string) *histogramCounter {
	ret := &histogramCounter{
		name:      name,
		histogram: NewHistogram(),
		gauge:     NewAverageGauge(1000),
		observer: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      promName(name),
			Help:      help,
			Buckets:   prometheus.ExponentialBuckets(1, 2, 20),
		}),
	}
	expvar.Publish(name+".histogram", ret.histogram)
	expvar.Publish(name+".average", ret.gauge)
	return ret
}

// Add adds a new sample to the histogram counter
func (h *histogramCounter) Add(value float64) {
	h.histogram.Add(value)
	h.gauge.Add(value)
	h.observer.Observe(value)
}

// Averages returns the current averages
func (h *histogramCounter) Averages() Averages {
	return h.gauge.Calculate()
}

// Counters for the node. The TX/RX counters are updated from the slot
// records in the background pipeline, never from the slot engine itself.
var (
	TxOK           *timeseriesCounter
	TxNoAck        *timeseriesCounter
	TxCollision    *timeseriesCounter
	TxErr          *timeseriesCounter
	TxDropped      *timeseriesCounter // Packets that left the queue without an ACK
	RxFrames       *timeseriesCounter
	RxInvalid      *timeseriesCounter // Frames that couldn't be decoded
	RxDropped      *timeseriesCounter // Frames lost when the RX ring was full
	RxUnsecured    *timeseriesCounter // Frames the security transform rejected
	SlotsDropped   *timeseriesCounter
	ClockAnomalies *timeseriesCounter
	RadioFaults    *timeseriesCounter
	LogDropped     *timeseriesCounter
	EBSent         *timeseriesCounter
	EBReceived     *timeseriesCounter
	KeepaliveSent  *timeseriesCounter
	Associations   *timeseriesCounter
	Desyncs        *timeseriesCounter
	SourceSwitches *timeseriesCounter
	SixPInitiated  *timeseriesCounter
	SixPCompleted  *timeseriesCounter
	SixPFailed     *timeseriesCounter
	SixPTimeouts   *timeseriesCounter
	StorageFailed  *timeseriesCounter
	RingIn         *timeseriesCounter
	Decoder        *timeseriesCounter
	MACProcessor   *timeseriesCounter
	TxProcessor    *timeseriesCounter

	DecoderChannelOut      *histogramCounter // Time to send message to the MAC processor
	MACProcessorChannelOut *histogramCounter // Time to send message to the result handler

	TimeDecoder      *histogramCounter
	TimeMACProcessor *histogramCounter
	TimeSixPInput    *histogramCounter
	TimePersist      *histogramCounter

	SyncCorrection *histogramCounter // Absolute correction in ticks
	TxAttempts     *histogramCounter // Transmissions per delivered packet
)

// Gauges are only exported through prometheus
var (
	QueuedPackets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queued_packets",
		Help:      "Packets waiting in the neighbor queues",
	})
	ScheduledLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduled_links",
		Help:      "Number of cells in the schedule",
	})
	JoinPriority = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "join_priority",
		Help:      "Current join priority, 255 when not synchronized",
	})
	Neighbors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "neighbors",
		Help:      "Neighbors with link statistics",
	})
)

func init() {
	TxOK = newTimeseriesCounter("tx.ok", "Acknowledged or broadcast transmissions")
	TxNoAck = newTimeseriesCounter("tx.noack", "Transmissions without an ACK")
	TxCollision = newTimeseriesCounter("tx.collision", "Transmissions deferred by a busy channel")
	TxErr = newTimeseriesCounter("tx.err", "Transmissions that failed in the radio")
	TxDropped = newTimeseriesCounter("tx.dropped", "Packets dropped after the last retry")
	RxFrames = newTimeseriesCounter("rx.frames", "Frames received")
	RxInvalid = newTimeseriesCounter("rx.invalid", "Frames that couldn't be decoded")
	RxUnsecured = newTimeseriesCounter("rx.unsecured", "Frames rejected by the security transform")
	RxDropped = newTimeseriesCounter("rx.dropped", "Frames lost in the handoff ring")
	SlotsDropped = newTimeseriesCounter("slot.dropped", "Slots skipped by the slot engine")
	ClockAnomalies = newTimeseriesCounter("sync.anomaly", "Rejected time corrections")
	RadioFaults = newTimeseriesCounter("radio.fault", "Radio faults")
	LogDropped = newTimeseriesCounter("log.dropped", "Slot log records lost")
	EBSent = newTimeseriesCounter("eb.sent", "Enhanced beacons queued")
	EBReceived = newTimeseriesCounter("eb.received", "Enhanced beacons received")
	KeepaliveSent = newTimeseriesCounter("keepalive.sent", "Keepalives queued")
	Associations = newTimeseriesCounter("sync.associated", "Network associations")
	Desyncs = newTimeseriesCounter("sync.lost", "Lost synchronization")
	SourceSwitches = newTimeseriesCounter("sync.switch", "Time source changes")
	SixPInitiated = newTimeseriesCounter("sixp.initiated", "6P transactions started")
	SixPCompleted = newTimeseriesCounter("sixp.completed", "6P transactions completed")
	SixPFailed = newTimeseriesCounter("sixp.failed", "6P transactions with an error code")
	SixPTimeouts = newTimeseriesCounter("sixp.timeout", "6P transactions timed out")
	StorageFailed = newTimeseriesCounter("storage.failed", "Failed storage operations")
	RingIn = newTimeseriesCounter("process.ring.in", "Records read from the handoff rings")
	Decoder = newTimeseriesCounter("process.decoder", "Frames decoded")
	MACProcessor = newTimeseriesCounter("process.macprocessor", "Frames processed")
	TxProcessor = newTimeseriesCounter("process.txprocessor", "TX results processed")

	DecoderChannelOut = newHistogramCounter("decoder.channel.send", "Time to hand a frame to the MAC processor (us)")
	MACProcessorChannelOut = newHistogramCounter("macprocessor.channel.send", "Time to hand a result to the result handler (us)")

	TimeDecoder = newHistogramCounter("decoder.timing", "Frame decoding time (us)")
	TimeMACProcessor = newHistogramCounter("macprocessor.timing", "Frame processing time (us)")
	TimeSixPInput = newHistogramCounter("sixp.input.timing", "Time to hand a 6P message to the engine (us)")
	TimePersist = newHistogramCounter("storage.persist.timing", "Time to store the schedule (us)")

	SyncCorrection = newHistogramCounter("sync.correction", "Absolute time correction (ticks)")
	TxAttempts = newHistogramCounter("tx.attempts", "Transmissions per delivered packet")
}
