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
	"math/rand"
	"time"
)

// latency adds an artificial delay to the memory backend. A real database
// responds in a millisecond or so (sometimes tens of milliseconds) while
// the maps answer in microseconds. The background pipeline persists the
// schedule after every 6P transaction so the delay makes the simulator
// behave closer to a deployment with PostgreSQL.
type latency struct {
	min time.Duration
	max time.Duration
}

// wait sleeps for a random interval in [min, max>
func (l latency) wait() {
	if l.max <= 0 || l.max <= l.min {
		return
	}
	time.Sleep(l.min + time.Duration(rand.Int63n(int64(l.max-l.min))))
}
