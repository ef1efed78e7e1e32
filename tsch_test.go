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
	"testing"
	"time"

	"github.com/ExploratoryEngineering/tsch/radio/sim"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/server"
)

func testConfig(coordinator bool, syslog bool) *server.Configuration {
	ret := server.NewMemoryConfig()
	ret.Coordinator = coordinator
	ret.OnlyLoopback = true
	ret.DebugPort = 0
	ret.HTTPServerPort = 0
	ret.LogLevel = 3
	ret.Syslog = syslog
	return ret
}

func testWithConfig(t *testing.T, config *server.Configuration) {
	clock := rtimer.NewVirtualClock()
	timer := clock.NewTimer(rtimer.Rate1MHz, 0, 0)
	medium := sim.NewMedium(clock, 1)
	s, err := newServer(config, timer, medium.AddRadio(timer), clock)
	if err != nil {
		t.Fatalf("Got error creating node: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Got error starting node: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(50 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	if config.Coordinator && !s.context.Sync.IsCoordinator() {
		t.Fatal("Node should be the coordinator")
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Got error shutting down node: %v", err)
	}
}

func TestTSCHServer(t *testing.T) {
	testWithConfig(t, testConfig(true, false))
	testWithConfig(t, testConfig(false, false))
	testWithConfig(t, testConfig(true, true))
}

func TestTSCHServerBadConfig(t *testing.T) {
	invalid := testConfig(false, false)
	invalid.MemoryDB = false
	clock := rtimer.NewVirtualClock()
	timer := clock.NewTimer(rtimer.Rate1MHz, 0, 0)
	if _, err := newServer(invalid, timer, sim.NewMedium(clock, 1).AddRadio(timer), clock); err == nil {
		t.Fatal("Expected error with bad config but didn't get it")
	}
	if _, err := NewServer(testConfig(false, false)); err == nil {
		t.Fatal("Expected error without a serial device")
	}
	missing := testConfig(false, false)
	missing.SerialDevice = "/dev/does-not-exist"
	if _, err := NewServer(missing); err == nil {
		t.Fatal("Expected error with a missing serial device")
	}
}
