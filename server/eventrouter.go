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
	"sync"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
)

type route struct {
	node protocol.LinkAddr
	all  bool
	ch   chan events.Event
}

// EventRouter is a channel event router. It will route events based on the
// node address. There may be multiple subscribers to the same node and each
// will receive a separate event. Subscribers to all events get every event
// regardless of node. The channels are buffered and if the subscribers
// can't keep up with the events they will be dropped by the router.
type EventRouter struct {
	routes        []route
	mutex         *sync.Mutex
	channelLength int
	dropped       uint64
}

// NewEventRouter creates a new event router
func NewEventRouter(channelLength int) *EventRouter {
	return &EventRouter{
		routes:        make([]route, 0),
		mutex:         &sync.Mutex{},
		channelLength: channelLength,
	}
}

// Subscribe subscribes to events for a particular node
func (e *EventRouter) Subscribe(node protocol.LinkAddr) <-chan events.Event {
	return e.add(route{node: node})
}

// SubscribeAll subscribes to events from every node
func (e *EventRouter) SubscribeAll() <-chan events.Event {
	return e.add(route{all: true})
}

func (e *EventRouter) add(r route) <-chan events.Event {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	r.ch = make(chan events.Event, e.channelLength)
	e.routes = append(e.routes, r)
	return r.ch
}

// Unsubscribe from channel. The channel is closed.
func (e *EventRouter) Unsubscribe(ch <-chan events.Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for i, r := range e.routes {
		if r.ch == ch {
			close(r.ch)
			e.routes = append(e.routes[:i], e.routes[i+1:]...)
			break
		}
	}
}

// Publish publishes an event to subscribers. If there are no subscribers
// the event will be ignored. If the event subscribers can't keep up with the
// events the events will be dropped.
func (e *EventRouter) Publish(ev events.Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for _, route := range e.routes {
		if !route.all && route.node.String() != ev.Node {
			continue
		}
		select {
		case route.ch <- ev:
			// This is OK
		default:
			e.dropped++
			logging.Debug("Channel client isn't keeping up with reads. Skipping the %s event for %s", ev.Type, ev.Node)
		}
	}
}

// Dropped returns the number of events that were skipped because a
// subscriber was full
func (e *EventRouter) Dropped() uint64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.dropped
}
