package main

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
	"errors"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/monitoring"
	"github.com/ExploratoryEngineering/tsch/processor"
	"github.com/ExploratoryEngineering/tsch/radio"
	"github.com/ExploratoryEngineering/tsch/radio/serial"
	"github.com/ExploratoryEngineering/tsch/restapi"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/storage"
	"github.com/ExploratoryEngineering/tsch/storage/dbstore"
	"github.com/ExploratoryEngineering/tsch/storage/memstore"
)

// Server is the main TSCH node process. It runs the slot engine on the
// radio, the processing pipeline and the monitoring endpoint.
type Server struct {
	config     *server.Configuration
	context    *server.Context
	pipeline   *processor.Pipeline
	monitoring *monitoring.Endpoint
	api        *restapi.Server
	mqtt       *server.MQTTExporter
	shutdown   []func()
}

func (c *Server) setupLogging() {
	logging.SetLogLevel(c.config.LogLevel)

	if c.config.Syslog {
		logging.EnableSyslog()
		logging.Debug("Using syslog for logs, log level is %d", c.config.LogLevel)
	} else {
		logging.EnableStderr(c.config.PlainLog)
		logging.Debug("Using stderr for logs, log level is %d", c.config.LogLevel)
	}
}

func (c *Server) checkConfig() error {
	if err := c.config.Validate(); err != nil {
		logging.Error("Invalid configuration: %v Exiting", err)
		return errors.New("invalid configuration")
	}
	return nil
}

func (c *Server) openStorage() (storage.Storage, error) {
	config := c.config
	if config.DBConnectionString != "" {
		logging.Info("Using PostgreSQL as backend storage")
		datastore, err := dbstore.CreateStorage(config.DBConnectionString,
			config.DBMaxConnections, config.DBIdleConnections, config.DBConnLifetime)
		if err != nil {
			logging.Error("Couldn't connect to database: %v", err)
			return storage.Storage{}, err
		}
		return datastore, nil
	}
	logging.Warning("Using in-memory database as backend storage")
	return memstore.CreateMemoryStorage(
		time.Duration(config.MemoryMinLatencyMs)*time.Millisecond,
		time.Duration(config.MemoryMaxLatencyMs)*time.Millisecond), nil
}

// NewServer creates a new server with the given configuration. The configuration
// is checked before the server is created, logging is initialized and the
// radio co-processor on the serial device is opened.
func NewServer(config *server.Configuration) (*Server, error) {
	if config.SerialDevice == "" {
		return nil, errors.New("no serial device for the radio")
	}
	timer := rtimer.NewWallTimer()
	serialConfig := serial.NewDefaultConfig(config.SerialDevice)
	serialConfig.Baud = config.SerialBaud
	driver, err := serial.Open(serialConfig, timer)
	if err != nil {
		logging.Error("Unable to open radio on %s: %v", config.SerialDevice, err)
		timer.Stop()
		return nil, err
	}
	c, err := newServer(config, timer, driver, rtimer.SystemClock())
	if err != nil {
		driver.Close()
		timer.Stop()
		return nil, err
	}
	c.shutdown = append(c.shutdown, timer.Stop, func() {
		if err := driver.Close(); err != nil {
			logging.Warning("Error closing radio: %v", err)
		}
	})
	return c, nil
}

// newServer creates the server on top of a radio and a timer
func newServer(config *server.Configuration, timer rtimer.Timer, driver radio.Driver, clock rtimer.AfterFuncer) (*Server, error) {
	c := &Server{config: config}
	c.setupLogging()

	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	logging.Info("This is the TSCH node %s", config.Address)

	datastore, err := c.openStorage()
	if err != nil {
		return nil, err
	}

	router := server.NewEventRouter(server.DefaultRouterChannelLength)
	c.context, err = server.NewContext(config, timer, driver, clock, &datastore, router)
	if err != nil {
		logging.Error("Unable to create node context: %v", err)
		datastore.Close()
		return nil, err
	}
	c.pipeline = processor.NewPipeline(c.context)

	if config.MQTTBroker != "" {
		c.mqtt = server.NewMQTTExporter(server.MQTTConfig{
			Broker:    config.MQTTBroker,
			Topic:     config.MQTTTopic,
			ClientID:  config.MQTTClientID,
			Username:  config.MQTTUsername,
			Password:  config.MQTTPassword,
			CertCheck: true,
		}, router)
	}

	c.monitoring, err = monitoring.NewEndpoint(config.OnlyLoopback, config.DebugPort, config.ProfilingEndpoint, config.RuntimeTrace, router)
	if config.ProfilingEndpoint {
		logging.Warning("Profiling is turned ON - access monitoring endpoint to inspect")
	}
	if err != nil {
		logging.Error("Unable to create monitoring endpoint: %v", err)
		datastore.Close()
		return nil, err
	}
	c.api, err = restapi.NewServer(config.OnlyLoopback, config.HTTPServerPort, c.context)
	if err != nil {
		logging.Error("Unable to create status API: %v", err)
		datastore.Close()
		return nil, err
	}
	return c, nil
}

// Start starts the node
func (c *Server) Start() error {
	if err := c.monitoring.Start(); err != nil {
		logging.Error("Unable to launch monitoring endpoint: %v", err)
		return err
	}
	logging.Warning("Monitoring is available at http://localhost:%d/debug", c.monitoring.Port())

	if err := c.api.Start(); err != nil {
		logging.Error("Unable to launch status API: %v", err)
		return err
	}

	if c.mqtt != nil {
		logging.Debug("Launching MQTT exporter")
		if err := c.mqtt.Start(); err != nil {
			logging.Error("Unable to start MQTT exporter: %v", err)
			return err
		}
	}

	logging.Debug("Starting pipeline")
	if err := c.pipeline.Start(context.Background()); err != nil {
		logging.Error("Unable to start the node: %v", err)
		return err
	}
	logging.Info("Node is running")
	return nil
}

// Shutdown stops the node. The schedule is stored before the storage is
// closed.
func (c *Server) Shutdown() error {
	c.pipeline.Stop()
	if err := c.context.Persist(); err != nil {
		logging.Warning("Unable to store schedule on shutdown: %v", err)
	}
	if c.mqtt != nil {
		c.mqtt.Stop()
	}
	if err := c.api.Shutdown(); err != nil {
		logging.Warning("Unable to stop status API: %v", err)
	}
	c.monitoring.Shutdown()
	c.context.Storage.Close()
	for _, fn := range c.shutdown {
		fn()
	}
	return nil
}
