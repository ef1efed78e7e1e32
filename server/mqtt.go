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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig is the configuration for the MQTT event exporter
type MQTTConfig struct {
	Broker    string // tcp://host:port or ssl://host:port
	Topic     string
	ClientID  string
	Username  string
	Password  string
	CertCheck bool
}

// MQTTExporter publishes node events to an MQTT broker. Events are
// published as JSON on <topic>/<node>/<event type>. Events without a node
// address go to <topic>/network/<event type>.
type MQTTExporter struct {
	config MQTTConfig
	router *EventRouter
	client mqtt.Client
	log    *MemoryLogger
	mutex  *sync.Mutex
	events <-chan events.Event
	done   chan struct{}
}

// NewMQTTExporter creates a new exporter. It won't connect until it is
// started.
func NewMQTTExporter(config MQTTConfig, router *EventRouter) *MQTTExporter {
	return &MQTTExporter{
		config: config,
		router: router,
		log:    NewMemoryLogger(DefaultMemoryLogSize),
		mutex:  &sync.Mutex{},
	}
}

// Topic returns the topic for the event
func (m *MQTTExporter) Topic(ev events.Event) string {
	node := ev.Node
	if node == "" {
		node = "network"
	}
	return strings.Join([]string{m.config.Topic, node, string(ev.Type)}, "/")
}

// Log returns the last diagnostic messages from the exporter
func (m *MQTTExporter) Log() []LogEntry {
	return m.log.Items()
}

func (m *MQTTExporter) connect() bool {
	token := m.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		m.log.Append(NewLogEntry(err.Error()))
		return false
	}
	return true
}

// open creates the client and connects. If there's an error it will return
// false and the reason is logged to the memory log.
func (m *MQTTExporter) open() bool {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.config.Broker)
	opts.SetClientID(m.config.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetWriteTimeout(1 * time.Second)
	opts.SetConnectTimeout(2 * time.Second)
	// Reconnects are done on the next publish. An automatic reconnect blocks
	// the publisher and the router would drop events anyway.
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
	}
	if m.config.Password != "" {
		opts.SetPassword(m.config.Password)
	}
	if strings.HasPrefix(m.config.Broker, "ssl://") {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: !m.config.CertCheck,
		})
	}

	m.client = mqtt.NewClient(opts)
	return m.connect()
}

// send publishes a single event. It returns false if the event couldn't be
// delivered to the broker.
func (m *MQTTExporter) send(ev events.Event) bool {
	if m.client == nil {
		return false
	}
	if !m.client.IsConnected() && !m.connect() {
		return false
	}
	buf, err := json.Marshal(ev)
	if err != nil {
		logging.Warning("Unable to marshal %s event into JSON: %v. Dropping it.", ev.Type, err)
		return true
	}
	token := m.client.Publish(m.Topic(ev), 1, false, buf)
	token.Wait()
	if err := token.Error(); err != nil {
		logging.Info("Unable to send event to MQTT broker %s: %v", m.config.Broker, err)
		m.log.Append(NewLogEntry(err.Error()))
		return false
	}
	return true
}

// Start connects to the broker and starts forwarding events. If the broker
// can't be reached the exporter keeps running and retries on every event.
func (m *MQTTExporter) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.events != nil {
		return fmt.Errorf("exporter for %s is already running", m.config.Broker)
	}
	if !m.open() {
		logging.Warning("Unable to connect to MQTT broker %s. Will retry when events arrive", m.config.Broker)
	}
	m.events = m.router.SubscribeAll()
	m.done = make(chan struct{})
	go m.forward(m.events, m.done)
	return nil
}

func (m *MQTTExporter) forward(ch <-chan events.Event, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		if ev.Type == events.SlotLog {
			// Far too many of these for the broker
			continue
		}
		m.send(ev)
	}
}

// Stop stops the forwarding and disconnects from the broker
func (m *MQTTExporter) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.events == nil {
		return
	}
	m.router.Unsubscribe(m.events)
	<-m.done
	m.events = nil
	if m.client == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Append(NewLogEntry(fmt.Sprintf("Recovered from panic: %v", r)))
		}
	}()
	m.client.Disconnect(250)
}
