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
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	s := CreateMemoryStorage(0, 0)
	defer s.Close()
	storagetest.DoStorageTests(&s, t)
}

func TestLatency(t *testing.T) {
	l := latency{min: time.Millisecond, max: 2 * time.Millisecond}
	start := time.Now()
	l.wait()
	if time.Since(start) < time.Millisecond {
		t.Fatal("Expected at least 1ms delay")
	}
	// No delay when max isn't set
	l = latency{}
	start = time.Now()
	l.wait()
	if time.Since(start) > 10*time.Millisecond {
		t.Fatal("Did not expect a delay")
	}
}
