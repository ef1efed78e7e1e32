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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/server"
	"github.com/ExploratoryEngineering/tsch/slot"
	"github.com/ExploratoryEngineering/tsch/storage/dbstore"
)

var (
	config     = server.NewDefaultConfig()
	slotLength uint
)

func init() {
	flag.StringVar(&config.Address, "address", server.DefaultAddress, "Extended address of the node")
	flag.BoolVar(&config.Coordinator, "coordinator", false, "Start a new network as the PAN coordinator")
	flag.UintVar(&config.PANID, "panid", server.DefaultPANID, "PAN ID")
	flag.UintVar(&config.TickRate, "tickrate", server.DefaultTickRate, "Timer ticks per second")
	flag.StringVar(&config.Hopping, "hopping", config.Hopping, "Channel hopping sequence (4_4, 4_16, 16_16)")
	flag.UintVar(&config.ScanChannel, "scan-channel", 0, "Channel to scan for beacons (0 = first channel in the hopping sequence)")
	flag.BoolVar(&config.CCA, "cca", true, "Do CCA before transmitting in shared cells")
	flag.UintVar(&config.SlotframeLength, "slotframe", config.SlotframeLength, "Length of the minimal slotframe")
	flag.IntVar(&config.MaxSlotframes, "max-slotframes", config.MaxSlotframes, "Maximum number of slotframes")
	flag.IntVar(&config.MaxLinks, "max-links", config.MaxLinks, "Maximum number of links")
	flag.UintVar(&slotLength, "slot-length", slot.DefaultSlotLength, "Slot length (us)")
	flag.UintVar(&config.MaxGuardUS, "max-guard", config.MaxGuardUS, "Maximum guard time extension (us)")
	flag.UintVar(&config.MaxDriftPPM, "max-drift", config.MaxDriftPPM, "Maximum clock drift (ppm)")
	flag.UintVar(&config.MaxCorrectionUS, "max-correction", config.MaxCorrectionUS, "Largest accepted time correction (us)")
	flag.UintVar(&config.MaxJoinPriority, "max-join-priority", config.MaxJoinPriority, "Highest join priority the node will accept")
	flag.DurationVar(&config.EBPeriod, "eb-period", server.DefaultEBPeriod, "Enhanced beacon period")
	flag.DurationVar(&config.KeepalivePeriod, "keepalive", server.DefaultKeepalivePeriod, "Keepalive period")
	flag.DurationVar(&config.MaxKeepalive, "max-keepalive", server.DefaultMaxKeepalive, "Maximum time without synchronization")
	flag.DurationVar(&config.SixPTimeout, "sixp-timeout", server.DefaultSixPTimeout, "6P transaction timeout")
	flag.UintVar(&config.SixPSFID, "sixp-sfid", config.SixPSFID, "6P scheduling function ID")
	flag.IntVar(&config.SixPCells, "sixp-cells", server.DefaultSixPCells, "Dedicated cells to request from the time source")
	flag.IntVar(&config.QueueLength, "queue-length", config.QueueLength, "Packets queued per neighbor")
	flag.IntVar(&config.MaxNeighbors, "max-neighbors", config.MaxNeighbors, "Maximum number of neighbors")
	flag.StringVar(&config.SerialDevice, "serial", "", "Serial device for the radio co-processor")
	flag.IntVar(&config.SerialBaud, "baud", server.DefaultSerialBaud, "Serial baud rate")
	flag.StringVar(&config.DBConnectionString, "connectionstring", "", "Database connection string")
	flag.BoolVar(&config.PrintSchema, "printschema", false, "Print schema definition")
	flag.BoolVar(&config.MemoryDB, "memorydb", true, "Use in-memory database for storage (for testing)")
	flag.IntVar(&config.MemoryMinLatencyMs, "min-memdb-latency", 0, "Minimum emulated latency for memory storage")
	flag.IntVar(&config.MemoryMaxLatencyMs, "max-memdb-latency", 0, "Maximum emulated latency for memory storage")
	flag.IntVar(&config.DBMaxConnections, "db-max-connections", server.DefaultMaxConns, "Maximum DB connections")
	flag.IntVar(&config.DBIdleConnections, "db-max-idle-connections", server.DefaultIdleConns, "Maximum idle DB connections")
	flag.DurationVar(&config.DBConnLifetime, "db-max-lifetime-connections", server.DefaultConnLifetime, "Maximum life time of DB connections")
	flag.StringVar(&config.MQTTBroker, "mqtt-broker", "", "MQTT broker for events (tcp://host:port)")
	flag.StringVar(&config.MQTTTopic, "mqtt-topic", server.DefaultMQTTTopic, "MQTT topic prefix")
	flag.StringVar(&config.MQTTClientID, "mqtt-clientid", server.DefaultMQTTClientID, "MQTT client ID")
	flag.StringVar(&config.MQTTUsername, "mqtt-username", "", "MQTT user name")
	flag.StringVar(&config.MQTTPassword, "mqtt-password", "", "MQTT password")
	flag.UintVar(&config.LogLevel, "loglevel", server.DefaultLogLevel, "Log level to use (0 = debug, 1 = info, 2 = warning, 3 = error)")
	flag.BoolVar(&config.PlainLog, "plainlog", false, "Use plain-text stderr logs")
	flag.BoolVar(&config.Syslog, "syslog", false, "Send logs to syslog")
	flag.BoolVar(&config.SlotLog, "slotlog", false, "Log every slot (debug level)")
	flag.BoolVar(&config.OnlyLoopback, "loopback", true, "Only serve the monitoring endpoint on the loopback adapter")
	flag.BoolVar(&config.ProfilingEndpoint, "pprof", false, "Turn on profiling endpoint (in monitoring; /debug/pprof/profile)")
	flag.BoolVar(&config.RuntimeTrace, "trace", false, "Turn on runtime trace generation. For testing")
	flag.IntVar(&config.DebugPort, "debugport", server.DefaultDebugPort, "Port for the monitoring endpoint (0 = random)")
	flag.IntVar(&config.HTTPServerPort, "http-port", server.DefaultHTTPServerPort, "Port for the status API (0 = random)")
	flag.Parse()
	config.Timing.SlotLength = uint32(slotLength)
}

func main() {
	if config.PrintSchema {
		fmt.Print(dbstore.DBSchema + "\n")
		return
	}
	logging.SetLogLevel(config.LogLevel)
	node, err := NewServer(config)
	if err != nil {
		return
	}

	terminator := make(chan bool)

	if err := node.Start(); err != nil {
		logging.Error("Node did not start: %v", err)
		return
	}
	defer func() {
		logging.Info("Node is shutting down...")
		node.Shutdown()
		logging.Info("Node has shut down")
	}()

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigch
		logging.Debug("Caught signal '%v'", sig)
		terminator <- true
	}()

	<-terminator
}
