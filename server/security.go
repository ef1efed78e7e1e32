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
import "github.com/ExploratoryEngineering/tsch/protocol"

// FrameSecurity is the link layer security transform. Only the frame
// payload (data and 6P) is transformed; the MAC header stays in the clear
// since the slot engine reads it while the slot is running. Secure is
// called before a frame is queued and Unsecure before the payload is
// used.
type FrameSecurity interface {
	Secure(peer protocol.LinkAddr, payload []byte) ([]byte, error)
	Unsecure(peer protocol.LinkAddr, payload []byte) ([]byte, error)
}

// NoSecurity passes the payload through unchanged
type NoSecurity struct{}

// Secure returns the payload
func (NoSecurity) Secure(peer protocol.LinkAddr, payload []byte) ([]byte, error) {
	return payload, nil
}

// Unsecure returns the payload
func (NoSecurity) Unsecure(peer protocol.LinkAddr, payload []byte) ([]byte, error) {
	return payload, nil
}
