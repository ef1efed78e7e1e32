package monitoring

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
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// Handler paths
const (
	varsPath    = "/debug/vars"
	metricsPath = "/metrics"
	eventsPath  = "/debug/events"
	tracePath   = "/debug/trace"
)

// EventInactivity is the time without events before an inactive event is
// sent on the event stream. Dead websockets are detected when the write
// fails.
var EventInactivity = 60 * time.Second

// EventSource is the source of the live event stream
type EventSource interface {
	SubscribeAll() <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Endpoint is the http monitoring endpoint
type Endpoint struct {
	srv    *http.Server
	port   int
	mux    *http.ServeMux
	source EventSource
}

// NewEndpoint returns a new Endpoint instance. A random port is used when
// the port is 0. The event stream is only available when source is set.
func NewEndpoint(loopbackOnly bool, port int, profiling bool, tracing bool, source EventSource) (*Endpoint, error) {
	ret := &Endpoint{port: port, mux: http.NewServeMux(), source: source}
	if ret.port == 0 {
		var err error
		if ret.port, err = utils.FreePort(); err != nil {
			return nil, err
		}
	}
	host := ""
	if loopbackOnly {
		host = "localhost"
	}

	ret.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("This is the monitoring endpoint"))
	})
	ret.mux.Handle(varsPath, expvar.Handler())
	ret.mux.Handle(metricsPath, promhttp.Handler())
	if source != nil {
		ret.mux.Handle(eventsPath, websocket.Handler(ret.eventHandler))
	}
	if profiling {
		ret.mux.HandleFunc("/debug/pprof/", pprof.Index)
		ret.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		ret.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		ret.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	}
	if tracing {
		ret.mux.Handle(tracePath, &tracer{dir: os.TempDir()})
	}
	ret.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, ret.port),
		Handler: ret.mux,
	}
	return ret, nil
}

// eventHandler streams events as JSON. The node query parameter limits the
// stream to a single node.
func (m *Endpoint) eventHandler(ws *websocket.Conn) {
	defer ws.Close()
	node := ws.Request().URL.Query().Get("node")

	ch := m.source.SubscribeAll()
	defer m.source.Unsubscribe(ch)

	for {
		var event events.Event
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if node != "" && e.Node != node {
				continue
			}
			event = e
		case <-time.After(EventInactivity):
			event = events.NewInactive()
		}
		if err := json.NewEncoder(ws).Encode(event); err != nil {
			logging.Info("Unable to send event to websocket at %v. Closing web socket", ws.Request().RemoteAddr)
			return
		}
	}
}

// Start launches the server
func (m *Endpoint) Start() error {
	if m.srv == nil {
		return errors.New("no valid server")
	}
	go func() {
		if err := m.srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Unable to listen and serve: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server. There is a 2 second timeout.
func (m *Endpoint) Shutdown() error {
	if m.srv == nil {
		return errors.New("server not launched yet")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		return err
	}
	m.srv = nil
	return nil
}

// Port returns the port the server is running on
func (m *Endpoint) Port() int {
	return m.port
}
