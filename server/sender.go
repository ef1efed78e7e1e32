package server

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
	"sync"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/queue"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/timesync"
)

// FrameSender builds MAC frames for the background domain and puts them in
// the frame queue. It sends 6P messages for the 6P engine, keepalives to
// the time source, data frames and enhanced beacons.
type FrameSender struct {
	mutex    *sync.Mutex
	address  protocol.LinkAddr
	panID    uint16
	queue    *queue.Queue
	seq      uint8
	security FrameSecurity
}

var _ sixp.Sender = &FrameSender{}

// NewFrameSender creates a sender for the node address
func NewFrameSender(address protocol.LinkAddr, panID uint16, q *queue.Queue) *FrameSender {
	return &FrameSender{
		mutex:    &sync.Mutex{},
		address:  address,
		panID:    panID,
		queue:    q,
		security: NoSecurity{},
	}
}

// SetSecurity sets the transform applied to outgoing payloads. It should
// be called before the node is started.
func (s *FrameSender) SetSecurity(security FrameSecurity) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.security = security
}

func (s *FrameSender) nextSeq() uint8 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.seq++
	return s.seq
}

func (s *FrameSender) secure(f *protocol.Frame) error {
	s.mutex.Lock()
	security := s.security
	s.mutex.Unlock()
	var err error
	if len(f.SixP) > 0 {
		if f.SixP, err = security.Secure(f.Destination, f.SixP); err != nil {
			return err
		}
	}
	if len(f.Payload) > 0 {
		if f.Payload, err = security.Secure(f.Destination, f.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *FrameSender) enqueue(f protocol.Frame, done func(ok bool)) error {
	if err := s.secure(&f); err != nil {
		return err
	}
	f.SeqNum = s.nextSeq()
	f.PANID = s.panID
	f.Source = s.address
	f.AckRequest = !f.Destination.IsBroadcast()
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	p := &queue.Packet{
		Frame:      buf,
		Dest:       f.Destination,
		SeqNum:     f.SeqNum,
		AckRequest: f.AckRequest,
	}
	if done != nil {
		p.Sent = func(p *queue.Packet) {
			done(p.Status == queue.TxOK)
		}
	}
	return s.queue.Add(p)
}

// Send queues an encoded 6P message for the peer. done is called by the
// TX processor when the packet leaves the queue.
func (s *FrameSender) Send(peer protocol.LinkAddr, msg []byte, done func(ok bool)) error {
	return s.enqueue(protocol.Frame{
		Type:        protocol.FrameData,
		Destination: peer,
		SixP:        msg,
	}, done)
}

// SendData queues a data frame. Broadcast frames aren't acknowledged.
func (s *FrameSender) SendData(dest protocol.LinkAddr, payload []byte, done func(ok bool)) error {
	return s.enqueue(protocol.Frame{
		Type:        protocol.FrameData,
		Destination: dest,
		Payload:     payload,
	}, done)
}

// SendKeepalive queues an empty data frame to the time source. The ACK
// carries the time correction.
func (s *FrameSender) SendKeepalive(timeSource protocol.LinkAddr, done func(ok bool)) error {
	return s.enqueue(protocol.Frame{
		Type:        protocol.FrameData,
		Destination: timeSource,
	}, done)
}

// SendBeacon queues an enhanced beacon. The slot engine writes the ASN and
// join priority when the beacon is sent. Only one beacon is queued at a
// time so this fails with queue.ErrQueueFull until the last one is out.
func (s *FrameSender) SendBeacon() error {
	f := protocol.Frame{
		Type:        protocol.FrameBeacon,
		SeqNum:      s.nextSeq(),
		PANID:       s.panID,
		Destination: protocol.BroadcastAddr,
		Source:      s.address,
		Sync:        &protocol.SyncInfo{JoinPriority: timesync.Unsynchronized},
	}
	buf, offset, err := f.MarshalBeacon()
	if err != nil {
		return err
	}
	return s.queue.AddBeacon(&queue.Packet{
		Frame:      buf,
		Dest:       protocol.BroadcastAddr,
		SeqNum:     f.SeqNum,
		SyncOffset: offset,
	})
}
