package sim

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
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/rtimer"
)

func setupMedium(n int) (*rtimer.VirtualClock, *Medium, []*Radio) {
	clock := rtimer.NewVirtualClock()
	m := NewMedium(clock, 1)
	var radios []*Radio
	for i := 0; i < n; i++ {
		r := m.AddRadio(clock.NewTimer(rtimer.Rate1MHz, rtimer.Ticks(i*1000), 0))
		r.On()
		r.SetChannel(20)
		radios = append(radios, r)
	}
	return clock, m, radios
}

func TestSendReceive(t *testing.T) {
	clock, _, radios := setupMedium(2)
	clock.Advance(time.Millisecond)
	frame := []byte{1, 2, 3, 4, 5}
	if err := radios[0].Send(frame); err != nil {
		t.Fatal(err)
	}
	if !radios[1].Receiving() {
		t.Fatal("Receiver should be busy")
	}
	if radios[1].ChannelClear() {
		t.Fatal("Channel should not be clear during a transmission")
	}
	clock.Advance(time.Millisecond)
	if !radios[1].Pending() {
		t.Fatal("Expected a pending frame")
	}
	buf := make([]byte, 127)
	n, err := radios[1].Read(buf)
	if err != nil || !bytes.Equal(buf[:n], frame) {
		t.Fatalf("Got %v (%v)", buf[:n], err)
	}
	// Radio 1 has a local offset of 1000 ticks, the frame started at 1 ms
	if ts := radios[1].RxTimestamp(); ts != 2000 {
		t.Fatalf("Timestamp is %d, expected 2000", ts)
	}
	if radios[0].Pending() {
		t.Fatal("The sender shouldn't receive its own frame")
	}
	if n, _ := radios[1].Read(buf); n != 0 {
		t.Fatal("Frame should only be read once")
	}
}

func TestCollision(t *testing.T) {
	clock, m, radios := setupMedium(3)
	radios[0].Send([]byte{1, 2, 3})
	clock.Advance(50 * time.Microsecond)
	radios[1].Send([]byte{4, 5, 6})
	clock.Advance(time.Millisecond)
	if radios[2].Pending() {
		t.Fatal("Overlapping frames should be lost")
	}
	if m.Collisions() != 1 {
		t.Fatalf("Collisions = %d", m.Collisions())
	}
}

func TestChannelAndPower(t *testing.T) {
	clock, _, radios := setupMedium(3)
	radios[1].SetChannel(11)
	radios[2].Off()
	radios[0].Send([]byte{1})
	clock.Advance(time.Millisecond)
	if radios[1].Pending() || radios[2].Pending() {
		t.Fatal("Frame received on the wrong channel or while off")
	}
	if err := radios[2].Send([]byte{1}); err != radio.ErrRadioOff {
		t.Fatalf("Expected radio off, got %v", err)
	}
	if err := radios[0].SetChannel(27); err != radio.ErrInvalidChannel {
		t.Fatalf("Expected invalid channel, got %v", err)
	}
	if err := radios[0].Send(make([]byte, 128)); err != radio.ErrFrameTooLong {
		t.Fatalf("Expected frame too long, got %v", err)
	}
	radios[0].SetFaulty(true)
	if err := radios[0].On(); err != radio.ErrRadioFault {
		t.Fatalf("Expected radio fault, got %v", err)
	}
}

func TestPRR(t *testing.T) {
	clock, m, radios := setupMedium(2)
	m.SetPRR(radios[0], radios[1], 0)
	radios[0].Send([]byte{1})
	clock.Advance(time.Millisecond)
	if radios[1].Pending() {
		t.Fatal("Link with PRR 0 delivered a frame")
	}
	radios[1].Send([]byte{2})
	clock.Advance(time.Millisecond)
	if !radios[0].Pending() {
		t.Fatal("Reverse link should deliver")
	}
	if m.Frames() != 2 {
		t.Fatalf("Frames = %d", m.Frames())
	}
}
