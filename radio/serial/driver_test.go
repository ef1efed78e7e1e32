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
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

type fixedClock rtimer.Ticks

func (f fixedClock) Now() rtimer.Ticks {
	return rtimer.Ticks(f)
}

type command struct {
	h    header
	body []byte
}

// coprocessor is the far end of the serial line
type coprocessor struct {
	conn     net.Conn
	answer   bool
	commands chan command
}

func newCoprocessor(t *testing.T, config Config, answer bool) (*Driver, *coprocessor) {
	host, far := net.Pipe()
	c := &coprocessor{conn: far, answer: answer, commands: make(chan command, 32)}
	go c.run()
	d := New(host, config, fixedClock(1000))
	t.Cleanup(func() {
		d.Close()
		far.Close()
	})
	return d, c
}

func (c *coprocessor) run() {
	dec := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		dec.Write(buf[:n], func(p []byte) {
			h, body, err := unpack(p)
			if err != nil {
				return
			}
			if h.Type == cmdCCA && c.answer {
				c.send(header{Type: evCCA, Seq: h.Seq}, &ccaReply{Clear: 1, RSSI: -95})
			}
			c.commands <- command{h: h, body: append([]byte(nil), body.Bytes()...)}
		})
	}
}

func (c *coprocessor) send(h header, body interface{}) {
	msg, err := pack(h, body)
	if err != nil {
		panic(err)
	}
	c.conn.Write(Encode(msg))
}

func (c *coprocessor) next(t *testing.T) command {
	select {
	case cmd := <-c.commands:
		return cmd
	case <-time.After(time.Second):
		t.Fatal("No command received")
	}
	return command{}
}

func testConfig() Config {
	ret := NewDefaultConfig("pipe")
	ret.ReplyTimeout = 500 * time.Millisecond
	return ret
}

func TestDriverCommands(t *testing.T) {
	d, c := newCoprocessor(t, testConfig(), true)

	if err := d.Send([]byte{1}); err != radio.ErrRadioOff {
		t.Fatal("Send should fail when the radio is off")
	}
	if err := d.On(); err != nil {
		t.Fatal(err)
	}
	if cmd := c.next(t); cmd.h.Type != cmdOn {
		t.Fatalf("Expected on command, got %c", cmd.h.Type)
	}
	if err := d.SetChannel(15); err != nil {
		t.Fatal(err)
	}
	if cmd := c.next(t); cmd.h.Type != cmdSetChannel || !bytes.Equal(cmd.body, []byte{15}) {
		t.Fatalf("Unexpected channel command %+v", cmd)
	}
	if err := d.SetChannel(5); err != radio.ErrInvalidChannel {
		t.Fatal("Channel 5 should be rejected")
	}
	if err := d.Send([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if cmd := c.next(t); cmd.h.Type != cmdTransmit || !bytes.Equal(cmd.body, []byte{3, 1, 2, 3}) {
		t.Fatalf("Unexpected transmit command %+v", cmd)
	}
	if err := d.Send(make([]byte, 200)); err != radio.ErrFrameTooLong {
		t.Fatal("Long frames should be rejected")
	}
	if err := d.Off(); err != nil {
		t.Fatal(err)
	}
	if cmd := c.next(t); cmd.h.Type != cmdOff {
		t.Fatalf("Expected off command, got %c", cmd.h.Type)
	}
}

func TestDriverReceive(t *testing.T) {
	d, c := newCoprocessor(t, testConfig(), true)

	// Co-processor clock is 600 ticks behind the local clock
	c.send(header{Type: evStatus}, &statusEvent{Flags: statusReceiving, Channel: 11, Now: 400})
	c.send(header{Type: evFrame}, &rxFrame{Timestamp: 500, RSSI: -40, Data: []byte{9, 8, 7}})

	deadline := time.Now().Add(time.Second)
	for !d.Pending() {
		if time.Now().After(deadline) {
			t.Fatal("Frame never arrived")
		}
		time.Sleep(time.Millisecond)
	}
	if d.Receiving() {
		t.Fatal("Receiving should clear when the frame is complete")
	}
	buf := make([]byte, 127)
	n, err := d.Read(buf)
	if err != nil || n != 3 || !bytes.Equal(buf[:n], []byte{9, 8, 7}) {
		t.Fatalf("Unexpected frame %x (err=%v)", buf[:n], err)
	}
	if d.RxTimestamp() != 1100 || d.LastRSSI() != -40 {
		t.Fatalf("Unexpected timestamp %d or RSSI %d", d.RxTimestamp(), d.LastRSSI())
	}
	if n, _ := d.Read(buf); n != 0 || d.Pending() {
		t.Fatal("Queue should be empty")
	}
	if d.Stats().FramesReceived != 1 {
		t.Fatal("Expected one received frame")
	}
}

func TestChannelClear(t *testing.T) {
	d, _ := newCoprocessor(t, testConfig(), true)
	if !d.ChannelClear() {
		t.Fatal("Channel should be clear")
	}
}

func TestUnresponsiveCoprocessor(t *testing.T) {
	config := testConfig()
	config.ReplyTimeout = 10 * time.Millisecond
	config.MaxTimeouts = 2
	d, _ := newCoprocessor(t, config, false)

	if d.ChannelClear() || d.ChannelClear() {
		t.Fatal("Missing replies should count as a busy channel")
	}
	if d.Stats().CCATimeouts != 2 {
		t.Fatal("Expected two timeouts")
	}
	if err := d.On(); err != radio.ErrRadioFault {
		t.Fatal("Radio should be faulted")
	}
}
