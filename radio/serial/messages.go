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
	"errors"

	"github.com/lunixbochs/struc"
)

// Message types. Upper case are commands from the host, lower case are
// events from the co-processor.
const (
	cmdOn         byte = 'O'
	cmdOff        byte = 'F'
	cmdSetChannel byte = 'C'
	cmdTransmit   byte = 'T'
	cmdCCA        byte = 'A'

	evFrame  byte = 'r'
	evStatus byte = 's'
	evCCA    byte = 'a'
)

// Status flags reported by the co-processor
const (
	statusReceiving = 1 << 1
	statusFault     = 1 << 2
)

var errShortMessage = errors.New("message too short")

// header is the first part of every message
type header struct {
	Type byte
	Seq  uint8
}

type setChannel struct {
	Channel uint8
}

type transmit struct {
	Length int `struc:"uint8,sizeof=Data"`
	Data   []byte
}

// rxFrame carries a received frame with the SFD timestamp
type rxFrame struct {
	Timestamp uint32
	RSSI      int8
	Length    int `struc:"uint8,sizeof=Data"`
	Data      []byte
}

// statusEvent is sent on every state change. Now is the co-processor
// clock when the event was sent.
type statusEvent struct {
	Flags   uint8
	Channel uint8
	Now     uint32
}

type ccaReply struct {
	Clear uint8
	RSSI  int8
}

// pack serializes the header followed by the (optional) body
func pack(h header, body interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := struc.Pack(buf, &h); err != nil {
		return nil, err
	}
	if body != nil {
		if err := struc.Pack(buf, body); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// unpack reads the header and returns a buffer positioned at the body
func unpack(data []byte) (header, *bytes.Buffer, error) {
	var h header
	if len(data) < 2 {
		return h, nil, errShortMessage
	}
	buf := bytes.NewBuffer(data)
	if err := struc.Unpack(buf, &h); err != nil {
		return h, nil, err
	}
	return h, buf, nil
}
