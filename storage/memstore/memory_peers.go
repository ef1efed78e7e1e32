package memstore

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
	"sort"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/storage"
)

type memoryPeerStorage struct {
	latency
	mutex *sync.Mutex
	peers map[protocol.LinkAddr]map[protocol.LinkAddr]sixp.PeerState
}

// NewMemoryPeerStorage returns a memory-backed 6P peer storage
func NewMemoryPeerStorage(min, max time.Duration) storage.PeerStorage {
	return &memoryPeerStorage{
		latency: latency{min: min, max: max},
		mutex:   &sync.Mutex{},
		peers:   make(map[protocol.LinkAddr]map[protocol.LinkAddr]sixp.PeerState),
	}
}

func (m *memoryPeerStorage) Put(node protocol.LinkAddr, peer sixp.PeerState) error {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	list, ok := m.peers[node]
	if !ok {
		list = make(map[protocol.LinkAddr]sixp.PeerState)
		m.peers[node] = list
	}
	list[peer.Addr] = peer
	return nil
}

func (m *memoryPeerStorage) List(node protocol.LinkAddr) ([]sixp.PeerState, error) {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ret := make([]sixp.PeerState, 0, len(m.peers[node]))
	for _, p := range m.peers[node] {
		ret = append(ret, p)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Addr.ToUint64() < ret[j].Addr.ToUint64()
	})
	return ret, nil
}

func (m *memoryPeerStorage) Delete(node protocol.LinkAddr, peer protocol.LinkAddr) error {
	m.wait()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	list := m.peers[node]
	if _, ok := list[peer]; !ok {
		return storage.ErrNotFound
	}
	delete(list, peer)
	return nil
}

func (m *memoryPeerStorage) Close() {
}
