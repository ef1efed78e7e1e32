package ring

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
	"testing"
)

func TestPutGet(t *testing.T) {
	r := New[int](3)
	if r.Cap() != 4 {
		t.Fatalf("Capacity should be rounded up to 4, got %d", r.Cap())
	}
	for i := 0; i < 4; i++ {
		if !r.Put(i) {
			t.Fatalf("Put %d failed", i)
		}
	}
	if r.Put(4) {
		t.Fatal("Put should fail when full")
	}
	if r.Dropped() != 1 || r.Free() != 0 {
		t.Fatalf("Dropped=%d Free=%d", r.Dropped(), r.Free())
	}
	if v, ok := r.Peek(); !ok || v != 0 {
		t.Fatal("Peek should return the oldest item")
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Get()
		if !ok || v != i {
			t.Fatalf("Got %d (%v), expected %d", v, ok, i)
		}
	}
	if _, ok := r.Get(); ok {
		t.Fatal("Queue should be empty")
	}
	if _, ok := r.Peek(); ok {
		t.Fatal("Peek on empty queue")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New[int](16)
	const count = 100000
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < count; {
			if r.Put(i) {
				i++
			}
		}
	}()
	next := 0
	for next < count {
		v, ok := r.Get()
		if !ok {
			continue
		}
		if v != next {
			t.Fatalf("Got %d, expected %d", v, next)
		}
		next++
	}
	wg.Wait()
}
