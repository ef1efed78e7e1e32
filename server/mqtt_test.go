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
	"fmt"
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/events"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/utils"
)

func TestMQTTTopic(t *testing.T) {
	m := NewMQTTExporter(MQTTConfig{Topic: "mesh"}, NewEventRouter(1))
	node := protocol.LinkAddrFromUint64(0x0102)
	if topic := m.Topic(events.NewFault(node, errors.New("x"))); topic != "mesh/00-00-00-00-00-00-01-02/Fault" {
		t.Fatalf("Unexpected topic %s", topic)
	}
	if topic := m.Topic(events.NewKeepAlive()); topic != "mesh/network/KeepAlive" {
		t.Fatalf("Unexpected topic %s", topic)
	}
}

// Without a broker the exporter must keep running and log the failures
func TestMQTTNoBroker(t *testing.T) {
	port, err := utils.FreePort()
	if err != nil {
		t.Fatal(err)
	}
	router := NewEventRouter(4)
	m := NewMQTTExporter(MQTTConfig{
		Broker:   fmt.Sprintf("tcp://127.0.0.1:%d", port),
		Topic:    "tsch-test",
		ClientID: "tsch-test",
	}, router)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err == nil {
		t.Fatal("Second start should fail")
	}
	router.Publish(events.NewDesynchronized(protocol.LinkAddrFromUint64(1), 10, "test"))

	deadline := time.Now().Add(5 * time.Second)
	for len(m.Log()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected connection errors in the log, got %v", m.Log())
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, v := range m.Log() {
		t.Logf("%s: %s", v.TimeString(), v.Message)
	}
	m.Stop()
	m.Stop()
}

func TestMQTTSendWithoutClient(t *testing.T) {
	m := NewMQTTExporter(MQTTConfig{Topic: "tsch"}, NewEventRouter(1))
	if m.send(events.NewKeepAlive()) {
		t.Fatal("Send without a client should fail")
	}
	m.Stop()
}
