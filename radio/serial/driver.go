package serial

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
	"io"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/lunixbochs/struc"
	tarm "github.com/tarm/serial"
)

// Default configuration values
const (
	DefaultBaud         = 460800
	DefaultReplyTimeout = 2 * time.Millisecond
	DefaultMaxTimeouts  = 5
	DefaultRxQueue      = 4
	maxPHYPayload       = 127
)

// Config is the serial radio configuration
type Config struct {
	Device       string
	Baud         int
	ReplyTimeout time.Duration // Time to wait for CCA replies
	MaxTimeouts  int           // Consecutive missed replies before the radio is faulted
	RxQueue      int           // Received frames kept until read
}

// NewDefaultConfig returns the default configuration for the device
func NewDefaultConfig(device string) Config {
	return Config{
		Device:       device,
		Baud:         DefaultBaud,
		ReplyTimeout: DefaultReplyTimeout,
		MaxTimeouts:  DefaultMaxTimeouts,
		RxQueue:      DefaultRxQueue,
	}
}

// Clock is the local tick source used to translate co-processor timestamps
type Clock interface {
	Now() rtimer.Ticks
}

// Stats holds the driver counters
type Stats struct {
	FramesReceived uint64
	FramesDropped  uint64
	FramingErrors  uint64
	CCATimeouts    uint64
}

type frame struct {
	data      []byte
	timestamp rtimer.Ticks
	rssi      int8
}

type ccaResult struct {
	seq   uint8
	clear bool
}

// Driver is a radio.Driver for a radio co-processor on a serial line. The
// co-processor does the time critical radio work; the driver keeps a local
// copy of its state so the queries used in a slot never touch the serial
// line. Only ChannelClear waits for a reply and that wait is bounded.
type Driver struct {
	port    io.ReadWriteCloser
	config  Config
	clock   Clock
	decoder *Decoder

	writeMutex *sync.Mutex
	mutex      *sync.Mutex
	on         bool
	receiving  bool
	fault      bool
	closed     bool
	offset     rtimer.Ticks
	frames     []frame
	lastTS     rtimer.Ticks
	lastRSSI   int8
	seq        uint8
	timeouts   int
	stats      Stats

	cca  chan ccaResult
	done chan struct{}
}

var _ radio.Driver = &Driver{}

// Open opens the serial port and starts the driver
func Open(config Config, clock Clock) (*Driver, error) {
	port, err := tarm.OpenPort(&tarm.Config{Name: config.Device, Baud: config.Baud})
	if err != nil {
		return nil, err
	}
	return New(port, config, clock), nil
}

// New creates a driver on top of an already opened port
func New(port io.ReadWriteCloser, config Config, clock Clock) *Driver {
	if config.RxQueue <= 0 {
		config.RxQueue = DefaultRxQueue
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = DefaultReplyTimeout
	}
	if config.MaxTimeouts <= 0 {
		config.MaxTimeouts = DefaultMaxTimeouts
	}
	ret := &Driver{
		port:       port,
		config:     config,
		clock:      clock,
		decoder:    NewDecoder(),
		writeMutex: &sync.Mutex{},
		mutex:      &sync.Mutex{},
		frames:     make([]frame, 0, config.RxQueue),
		cca:        make(chan ccaResult, 1),
		done:       make(chan struct{}),
	}
	go ret.readLoop()
	return ret
}

// Close stops the driver and closes the port
func (d *Driver) Close() error {
	d.mutex.Lock()
	d.closed = true
	d.mutex.Unlock()
	err := d.port.Close()
	<-d.done
	return err
}

// Stats returns the driver counters
func (d *Driver) Stats() Stats {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ret := d.stats
	ret.FramingErrors = d.decoder.Errors()
	return ret
}

func (d *Driver) readLoop() {
	defer close(d.done)
	buf := make([]byte, 512)
	for {
		n, err := d.port.Read(buf)
		if n > 0 {
			d.mutex.Lock()
			d.decoder.Write(buf[:n], d.handleMessage)
			d.mutex.Unlock()
		}
		if err != nil {
			d.mutex.Lock()
			defer d.mutex.Unlock()
			if !d.closed {
				logging.Error("Serial radio read failed: %v", err)
				d.fault = true
			}
			return
		}
	}
}

// handleMessage is called with the mutex held
func (d *Driver) handleMessage(data []byte) {
	h, buf, err := unpack(data)
	if err != nil {
		logging.Warning("Dropping serial message: %v", err)
		return
	}
	switch h.Type {
	case evFrame:
		f := &rxFrame{}
		if err := struc.Unpack(buf, f); err != nil {
			logging.Warning("Malformed frame event: %v", err)
			return
		}
		d.receiving = false
		if len(d.frames) >= d.config.RxQueue {
			d.stats.FramesDropped++
			return
		}
		d.stats.FramesReceived++
		d.frames = append(d.frames, frame{
			data:      append([]byte(nil), f.Data...),
			timestamp: rtimer.Ticks(f.Timestamp) + d.offset,
			rssi:      f.RSSI,
		})

	case evStatus:
		s := &statusEvent{}
		if err := struc.Unpack(buf, s); err != nil {
			logging.Warning("Malformed status event: %v", err)
			return
		}
		d.receiving = s.Flags&statusReceiving != 0
		if s.Flags&statusFault != 0 {
			logging.Error("Radio co-processor reports a fault")
			d.fault = true
		}
		d.offset = d.clock.Now() - rtimer.Ticks(s.Now)

	case evCCA:
		r := &ccaReply{}
		if err := struc.Unpack(buf, r); err != nil {
			logging.Warning("Malformed CCA reply: %v", err)
			return
		}
		// Only the newest reply is kept
		select {
		case <-d.cca:
		default:
		}
		d.cca <- ccaResult{seq: h.Seq, clear: r.Clear != 0}

	default:
		logging.Debug("Unknown serial message type %c", h.Type)
	}
}

func (d *Driver) command(t byte, body interface{}) (uint8, error) {
	d.mutex.Lock()
	if d.fault {
		d.mutex.Unlock()
		return 0, radio.ErrRadioFault
	}
	d.seq++
	seq := d.seq
	d.mutex.Unlock()

	msg, err := pack(header{Type: t, Seq: seq}, body)
	if err != nil {
		return 0, err
	}
	d.writeMutex.Lock()
	_, err = d.port.Write(Encode(msg))
	d.writeMutex.Unlock()
	if err != nil {
		logging.Error("Serial radio write failed: %v", err)
		d.mutex.Lock()
		d.fault = true
		d.mutex.Unlock()
		return 0, radio.ErrRadioFault
	}
	return seq, nil
}

// On turns the receiver on
func (d *Driver) On() error {
	if _, err := d.command(cmdOn, nil); err != nil {
		return err
	}
	d.mutex.Lock()
	d.on = true
	d.mutex.Unlock()
	return nil
}

// Off turns the radio off. Frames not yet read are discarded.
func (d *Driver) Off() error {
	if _, err := d.command(cmdOff, nil); err != nil {
		return err
	}
	d.mutex.Lock()
	d.on = false
	d.receiving = false
	d.frames = d.frames[:0]
	d.mutex.Unlock()
	return nil
}

// SetChannel changes the radio channel
func (d *Driver) SetChannel(channel uint8) error {
	if !radio.ValidChannel(channel) {
		return radio.ErrInvalidChannel
	}
	_, err := d.command(cmdSetChannel, &setChannel{Channel: channel})
	return err
}

// Send starts a transmission. The co-processor transmits as soon as the
// command is received.
func (d *Driver) Send(data []byte) error {
	if len(data) > maxPHYPayload {
		return radio.ErrFrameTooLong
	}
	d.mutex.Lock()
	on := d.on
	d.mutex.Unlock()
	if !on {
		return radio.ErrRadioOff
	}
	_, err := d.command(cmdTransmit, &transmit{Data: data})
	return err
}

// Read returns the oldest received frame
func (d *Driver) Read(buf []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.fault {
		return 0, radio.ErrRadioFault
	}
	if len(d.frames) == 0 {
		return 0, nil
	}
	f := d.frames[0]
	copy(d.frames, d.frames[1:])
	d.frames = d.frames[:len(d.frames)-1]
	d.lastTS = f.timestamp
	d.lastRSSI = f.rssi
	return copy(buf, f.data), nil
}

// RxTimestamp returns the SFD time of the last frame returned by Read
func (d *Driver) RxTimestamp() rtimer.Ticks {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.lastTS
}

// ChannelClear asks the co-processor for a CCA. A missing reply counts as
// a busy channel; too many missing replies in a row fault the radio.
func (d *Driver) ChannelClear() bool {
	seq, err := d.command(cmdCCA, nil)
	if err != nil {
		return false
	}
	timer := time.NewTimer(d.config.ReplyTimeout)
	defer timer.Stop()
	for {
		select {
		case r := <-d.cca:
			if r.seq != seq {
				// Late reply to an earlier request
				continue
			}
			d.mutex.Lock()
			d.timeouts = 0
			d.mutex.Unlock()
			return r.clear
		case <-timer.C:
			d.mutex.Lock()
			d.stats.CCATimeouts++
			d.timeouts++
			if d.timeouts >= d.config.MaxTimeouts {
				logging.Error("Radio co-processor stopped answering")
				d.fault = true
			}
			d.mutex.Unlock()
			return false
		}
	}
}

// Receiving returns true while the co-processor reports an incoming frame
func (d *Driver) Receiving() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.receiving
}

// Pending returns true if a frame is waiting to be read
func (d *Driver) Pending() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.frames) > 0
}

// LastRSSI returns the RSSI of the last frame returned by Read
func (d *Driver) LastRSSI() int8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.lastRSSI
}
