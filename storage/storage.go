package storage

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
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/sixp"
)

// ScheduleStorage stores the slotframes and cells of a node. The schedule
// is stored as a whole since the table is replaced as a whole on restore.
type ScheduleStorage interface {
	// Put replaces the stored schedule for the node.
	Put(node protocol.LinkAddr, frames []schedule.Slotframe) error

	// Get returns the stored schedule for the node. If there's no schedule
	// stored ErrNotFound is returned.
	Get(node protocol.LinkAddr) ([]schedule.Slotframe, error)

	// Delete removes the schedule. ErrNotFound is returned if the node has
	// no stored schedule.
	Delete(node protocol.LinkAddr) error

	// Close releases the resources used by the storage
	Close()
}

// PeerStorage stores the 6P sequence number and generation counter for each
// neighbor of a node. Stale counters make the first transaction after a
// restart fail with a sequence error so these must survive restarts along
// with the schedule.
type PeerStorage interface {
	// Put adds or updates the peer state.
	Put(node protocol.LinkAddr, peer sixp.PeerState) error

	// List returns all of the peers for the node. The list is empty (and the
	// error nil) for unknown nodes.
	List(node protocol.LinkAddr) ([]sixp.PeerState, error)

	// Delete removes a single peer. ErrNotFound is returned if the peer
	// doesn't exist.
	Delete(node protocol.LinkAddr, peer protocol.LinkAddr) error

	// Close releases the resources used by the storage
	Close()
}

// Storage holds all of the storage objects
type Storage struct {
	Schedule ScheduleStorage
	Peers    PeerStorage
}

// Close closes all of the storage instances.
func (s *Storage) Close() {
	if s.Schedule != nil {
		s.Schedule.Close()
	}
	if s.Peers != nil {
		s.Peers.Close()
	}
}
