package storagetest

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
	"testing"

	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/storage"
)

func testPeerStorage(s storage.PeerStorage, t *testing.T) {
	node := makeRandomAddr()

	list, err := s.List(node)
	if err != nil || len(list) != 0 {
		t.Fatalf("Expected no peers for unknown node, got %v (err=%v)", list, err)
	}

	a := sixp.PeerState{Addr: makeRandomAddr(), NextSeq: 4, Gen: 1}
	b := sixp.PeerState{Addr: makeRandomAddr(), NextSeq: 15, Gen: 3}
	if err := s.Put(node, a); err != nil {
		t.Fatalf("Got error storing peer: %v", err)
	}
	if err := s.Put(node, b); err != nil {
		t.Fatalf("Got error storing peer: %v", err)
	}

	// Update existing peer
	a.NextSeq = 5
	a.Gen = 2
	if err := s.Put(node, a); err != nil {
		t.Fatalf("Got error updating peer: %v", err)
	}

	list, err = s.List(node)
	if err != nil {
		t.Fatalf("Got error listing peers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 peers but got %d", len(list))
	}
	found := 0
	for _, p := range list {
		if p == a || p == b {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("Peer list doesn't match: %+v", list)
	}

	// Peers belong to a single node
	if list, _ := s.List(makeRandomAddr()); len(list) != 0 {
		t.Fatal("Other nodes should have no peers")
	}

	if err := s.Delete(node, a.Addr); err != nil {
		t.Fatalf("Got error deleting peer: %v", err)
	}
	if err := s.Delete(node, a.Addr); err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound but got %v", err)
	}
	list, _ = s.List(node)
	if len(list) != 1 || list[0] != b {
		t.Fatalf("Expected only %+v, got %+v", b, list)
	}
	s.Delete(node, b.Addr)
}
