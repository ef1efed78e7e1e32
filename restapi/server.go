package restapi

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
	"fmt"
	"net/http"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/utils"
)

// Server serves the node status API. It can be started and shut down once
// since the port lingers.
type Server struct {
	srv       *http.Server
	context   *server.Context
	port      int
	completed chan bool
}

// NewServer returns a new server instance. A random port is picked when
// the port is 0. If loopbackOnly is true only the loopback adapter will be
// used.
func NewServer(loopbackOnly bool, port int, scontext *server.Context) (*Server, error) {
	ret := &Server{context: scontext, port: port, completed: make(chan bool, 1)}
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
	ret.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, ret.port),
		Handler: addCORSHeaders(ret.handler()),
	}
	return ret, nil
}

// Start launches the server
func (h *Server) Start() error {
	logging.Info("Status API listening on port %d", h.port)
	go func() {
		if err := h.srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("ListenAndServe returned error: %v", err)
		}
		h.completed <- true
	}()
	return nil
}

// Shutdown stops the server
func (h *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-h.completed:
	}
	return nil
}

// Port returns the port the server listens on
func (h *Server) Port() int {
	return h.port
}

func (h *Server) loopbackURL() string {
	return fmt.Sprintf("http://localhost:%d", h.port)
}

func (h *Server) handler() http.HandlerFunc {
	router := parameterRouter{}
	router.AddRoute("/", h.rootHandler)
	router.AddRoute("/node", h.nodeHandler)
	router.AddRoute("/stats", h.statsHandler)
	router.AddRoute("/schedule", h.scheduleHandler)
	router.AddRoute("/schedule/{handle}", h.slotframeHandler)
	router.AddRoute("/neighbors", h.neighborListHandler)
	router.AddRoute("/neighbors/{addr}", h.neighborHandler)
	router.AddRoute("/peers", h.peerListHandler)
	router.AddRoute("/peers/{addr}", h.peerHandler)
	router.AddRoute("/peers/{addr}/requests", h.peerRequestHandler)
	return router.Handler()
}
