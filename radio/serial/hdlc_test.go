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
	"testing"
)

func TestHDLCEncodeDecode(t *testing.T) {
	payload := []byte{1, hdlcFlag, 2, hdlcEscape, 3}
	encoded := Encode(payload)
	if bytes.Count(encoded, []byte{hdlcFlag}) != 2 {
		t.Fatalf("Flag bytes should be escaped: %x", encoded)
	}

	var frames [][]byte
	d := NewDecoder()
	// Garbage before the first flag is ignored
	stream := append([]byte{0x11, 0x22, hdlcEscape}, encoded...)
	d.Write(stream, func(p []byte) {
		frames = append(frames, append([]byte(nil), p...))
	})
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("Expected the payload back, got %x", frames)
	}
	if d.Errors() != 0 {
		t.Fatal("Should have no errors")
	}
}

func TestHDLCSplitStream(t *testing.T) {
	a := Encode([]byte("first"))
	b := Encode([]byte("second"))
	stream := append(a, b...)

	var frames []string
	d := NewDecoder()
	for _, c := range stream {
		d.Write([]byte{c}, func(p []byte) {
			frames = append(frames, string(p))
		})
	}
	if len(frames) != 2 || frames[0] != "first" || frames[1] != "second" {
		t.Fatalf("Unexpected frames %v", frames)
	}
}

func TestHDLCBadFrames(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3, 4})
	encoded[2] ^= 0x01

	d := NewDecoder()
	called := false
	fn := func(p []byte) { called = true }
	d.Write(encoded, fn)
	if called || d.Errors() != 1 {
		t.Fatal("Corrupted frame should be dropped")
	}

	// Too short to hold a checksum
	d.Write([]byte{hdlcFlag, 1, hdlcFlag}, fn)
	if called || d.Errors() != 2 {
		t.Fatal("Short frame should be dropped")
	}

	// Oversized frames are dropped and the decoder recovers on the next flag
	big := make([]byte, MaxFrameSize+10)
	d.Write(append([]byte{hdlcFlag}, big...), fn)
	d.Write(Encode([]byte{9}), fn)
	if !called || d.Errors() != 3 {
		t.Fatalf("Decoder should recover after an oversized frame (errors=%d)", d.Errors())
	}
}
