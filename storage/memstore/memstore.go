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
	"time"

	"github.com/ExploratoryEngineering/tsch/storage"
)

// CreateMemoryStorage returns a storage backed by maps. Calls are delayed by
// a random interval between minLatency and maxLatency; use zero for both to
// turn the delay off.
func CreateMemoryStorage(minLatency, maxLatency time.Duration) storage.Storage {
	return storage.Storage{
		Schedule: NewMemoryScheduleStorage(minLatency, maxLatency),
		Peers:    NewMemoryPeerStorage(minLatency, maxLatency),
	}
}
