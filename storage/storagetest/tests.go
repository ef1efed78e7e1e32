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
	"crypto/rand"
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/storage"
)

// This is a set of default tests for storage backends.

func makeRandomAddr() protocol.LinkAddr {
	ret := protocol.LinkAddr{}
	rand.Read(ret.Octets[:])
	return ret
}

// DoStorageTests tests all of the storage interfaces
func DoStorageTests(storageCollection *storage.Storage, t *testing.T) {
	testScheduleStorage(storageCollection.Schedule, t)
	testPeerStorage(storageCollection.Peers, t)
}
