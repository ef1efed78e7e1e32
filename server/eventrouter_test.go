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
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/protocol"
)

// Simple one-shot route test
func TestEventRouter(t *testing.T) {
	router := NewEventRouter(2)
	node := protocol.LinkAddrFromUint64(1)

	ch := router.Subscribe(node)
	other := router.Subscribe(protocol.LinkAddrFromUint64(2))

	router.Publish(events.NewFault(node, errors.New("radio fault")))

	select {
	case ev := <-ch:
		if ev.Type != events.Fault || ev.Node != node.String() {
			t.Fatalf("Unexpected event %+v", ev)
		}
	case <-time.After(10 * time.Millisecond):
		t.Fatal("Didn't get an event on the channel")
	}
	select {
	case ev := <-other:
		t.Fatalf("Other node shouldn't get the event %+v", ev)
	default:
	}

	router.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("Channel should be closed after unsubscribe")
	}
	router.Unsubscribe(other)
}

func TestEventRouterSubscribeAll(t *testing.T) {
	router := NewEventRouter(4)
	all := router.SubscribeAll()

	for i := uint64(1); i <= 3; i++ {
		router.Publish(events.NewTimeSource(protocol.LinkAddrFromUint64(i), protocol.LinkAddrFromUint64(0)))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-all:
		case <-time.After(10 * time.Millisecond):
			t.Fatalf("Missing event %d", i)
		}
	}

	// Full channels drop events instead of blocking
	for i := 0; i < 10; i++ {
		router.Publish(events.NewKeepAlive())
	}
	if router.Dropped() != 6 {
		t.Fatalf("Expected 6 dropped events, got %d", router.Dropped())
	}
	router.Unsubscribe(all)
}

// Test with multiple routes (and channels)
func TestEventRouterMultipleRoutes(t *testing.T) {
	const numEvents = 4
	router := NewEventRouter(numEvents)
	wg := sync.WaitGroup{}

	const routes = 10
	nodes := make([]protocol.LinkAddr, routes)
	for i := 0; i < routes; i++ {
		nodes[i] = protocol.LinkAddrFromUint64(uint64(i + 1))
	}

	chans := make([]<-chan events.Event, routes)
	for i := 0; i < routes; i++ {
		chans[i] = router.Subscribe(nodes[i])
	}

	failed := make(chan int, routes)
	wg.Add(routes)
	for _, ch := range chans {
		ch := ch
		go func() {
			defer wg.Done()
			received := 0
			for {
				select {
				case <-ch:
					received++
					if received == numEvents {
						return
					}
				case <-time.After(100 * time.Millisecond):
					failed <- received
					return
				}
			}
		}()
	}

	publish := func() {
		for i := 0; i < routes; i++ {
			router.Publish(events.NewDesynchronized(nodes[i], 100, "keepalive timeout"))
			router.Publish(events.NewAssociated(nodes[i], nodes[0], 200, 1))
			router.Publish(events.NewData(nodes[i], nodes[0], 300, "0102"))
			router.Publish(events.NewSlotLog(nodes[i], 400, "{asn 0.400} dropped 1 slot(s)"))
		}
	}

	publish()
	wg.Wait()
	close(failed)
	for n := range failed {
		t.Fatalf("Didn't receive data! Got just %d events, expected %d", n, numEvents)
	}

	for i := routes - 1; i >= 0; i-- {
		router.Unsubscribe(chans[i])
	}

	// No subscribers left; this must not block or panic
	publish()
}

// Create multiple copies of the same subscription and size up and down. The
// output isn't *that* interesting; the test just ensures edge cases aren't missed.
func TestResize(t *testing.T) {
	const routeCount = 100
	router := NewEventRouter(2)

	var subs []<-chan events.Event

	node := protocol.LinkAddrFromUint64(4711)
	for i := 0; i < routeCount; i++ {
		subs = append(subs, router.Subscribe(node))
	}

	router.Publish(events.NewDesynchronized(node, 1, "test"))

	for i := 0; i < routeCount/2; i++ {
		router.Unsubscribe(subs[rand.Int()%routeCount])
	}

	router.Publish(events.NewDesynchronized(node, 2, "test"))

	for i := 0; i < routeCount; i++ {
		router.Unsubscribe(subs[i])
	}
}
