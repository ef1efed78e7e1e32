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
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/slot"
	"github.com/ExploratoryEngineering/tsch/timesync"
)

// Configuration holds the configuration for a node
type Configuration struct {
	Address            string // Extended address, xx-xx-xx-xx-xx-xx-xx-xx
	Coordinator        bool   // Start the network instead of scanning for it
	PANID              uint
	TickRate           uint // Timer ticks per second
	Timing             slot.Timing
	Hopping            string // Hopping sequence name
	ScanChannel        uint   // Channel to scan for beacons. 0 is the first channel in the sequence.
	CCA                bool
	SlotframeLength    uint
	MaxSlotframes      int
	MaxLinks           int
	MaxGuardUS         uint
	MaxDriftPPM        uint
	MaxCorrectionUS    uint
	MaxJoinPriority    uint
	EBPeriod           time.Duration
	KeepalivePeriod    time.Duration
	MaxKeepalive       time.Duration // Desynchronized after twice this without sync
	SixPTimeout        time.Duration
	SixPSFID           uint
	SixPCells          int // Dedicated cells requested from the time source after association
	QueueLength        int
	MaxNeighbors       int
	SerialDevice       string
	SerialBaud         int
	DBConnectionString string
	PrintSchema        bool
	MemoryDB           bool
	MemoryMinLatencyMs int
	MemoryMaxLatencyMs int
	DBMaxConnections   int
	DBIdleConnections  int
	DBConnLifetime     time.Duration
	MQTTBroker         string // tcp://host:port. Empty disables the exporter.
	MQTTTopic          string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	LogLevel           uint
	PlainLog           bool // Plain stderr logs without colors
	Syslog             bool
	SlotLog            bool // Log every slot record at debug level
	OnlyLoopback       bool // use only loopback adapter - for testing
	ProfilingEndpoint  bool // Turn on profiling endpoint - for testing
	RuntimeTrace       bool // Turn on runtime trace - for testing
	DebugPort          int  // Debug port - 0 for random, default 8081
	HTTPServerPort     int  // Status API port - 0 for random, default 8080
}

// This is the default configuration
const (
	DefaultAddress         = "00-12-4b-00-00-00-00-01"
	DefaultPANID           = 0xabcd
	DefaultTickRate        = uint(rtimer.Rate1MHz)
	DefaultEBPeriod        = 16 * time.Second
	DefaultKeepalivePeriod = 12 * time.Second
	DefaultMaxKeepalive    = 60 * time.Second
	DefaultSixPTimeout     = 30 * time.Second
	DefaultSixPCells       = 1
	DefaultSerialBaud      = 460800
	DefaultMQTTTopic       = "tsch"
	DefaultMQTTClientID    = "tsch-node"
	DefaultLogLevel        = 1
	DefaultDebugPort       = 8081
	DefaultHTTPServerPort  = 8080
	DefaultMaxConns        = 20
	DefaultIdleConns       = 10
	DefaultConnLifetime    = 10 * time.Minute
)

// NewDefaultConfig returns the default configuration. Note that this configuration
// isn't valid right out of the box; a storage backend must be selected.
func NewDefaultConfig() *Configuration {
	return &Configuration{
		Address:           DefaultAddress,
		PANID:             DefaultPANID,
		TickRate:          DefaultTickRate,
		Timing:            slot.DefaultTiming(),
		Hopping:           schedule.DefaultSequenceName,
		CCA:               true,
		SlotframeLength:   schedule.DefaultSlotframeLength,
		MaxSlotframes:     schedule.DefaultMaxSlotframes,
		MaxLinks:          schedule.DefaultMaxLinks,
		MaxGuardUS:        timesync.DefaultMaxGuardUS,
		MaxDriftPPM:       timesync.DefaultMaxDriftPPM,
		MaxCorrectionUS:   timesync.DefaultMaxCorrectionUS,
		MaxJoinPriority:   timesync.DefaultMaxJoinPriority,
		EBPeriod:          DefaultEBPeriod,
		KeepalivePeriod:   DefaultKeepalivePeriod,
		MaxKeepalive:      DefaultMaxKeepalive,
		SixPTimeout:       DefaultSixPTimeout,
		SixPSFID:          sixp.SimpleSFID,
		SixPCells:         DefaultSixPCells,
		QueueLength:       8,
		MaxNeighbors:      16,
		SerialBaud:        DefaultSerialBaud,
		MQTTTopic:         DefaultMQTTTopic,
		MQTTClientID:      DefaultMQTTClientID,
		LogLevel:          DefaultLogLevel,
		DebugPort:         DefaultDebugPort,
		HTTPServerPort:    DefaultHTTPServerPort,
		DBMaxConnections:  DefaultMaxConns,
		DBIdleConnections: DefaultIdleConns,
		DBConnLifetime:    DefaultConnLifetime,
	}
}

// NewMemoryConfig returns a configuration with memory-backed storage. This
// is a valid configuration.
func NewMemoryConfig() *Configuration {
	ret := NewDefaultConfig()
	ret.MemoryDB = true
	return ret
}

// LinkAddr returns the node address. The configuration is assumed to be
// valid at this point. If the address can't be parsed it will panic.
func (cfg *Configuration) LinkAddr() protocol.LinkAddr {
	ret, err := protocol.LinkAddrFromString(cfg.Address)
	if err != nil {
		panic("invalid format for address in configuration")
	}
	return ret
}

// Rate returns the timer tick rate
func (cfg *Configuration) Rate() rtimer.Rate {
	return rtimer.Rate(cfg.TickRate)
}

// SlotConfig returns the slot engine configuration
func (cfg *Configuration) SlotConfig() slot.Config {
	ret := slot.DefaultConfig(cfg.LinkAddr())
	ret.PANID = uint16(cfg.PANID)
	ret.Timing = cfg.Timing
	ret.Hopping, _ = schedule.SequenceByName(cfg.Hopping)
	ret.CCA = cfg.CCA
	return ret
}

// SyncConfig returns the time synchronization configuration
func (cfg *Configuration) SyncConfig() timesync.Config {
	return timesync.Config{
		Rate:            cfg.Rate(),
		MaxCorrectionUS: uint32(cfg.MaxCorrectionUS),
		MaxDriftPPM:     uint32(cfg.MaxDriftPPM),
		MaxGuardUS:      uint32(cfg.MaxGuardUS),
		MaxJoinPriority: uint8(cfg.MaxJoinPriority),
	}
}

// Validate checks the configuration for inconsistencies and errors. This
// function logs the warnings using the logger package as well.
func (cfg *Configuration) Validate() error {
	if _, err := protocol.LinkAddrFromString(cfg.Address); err != nil {
		return fmt.Errorf("invalid node address %q: %v", cfg.Address, err)
	}
	addr := cfg.LinkAddr()
	if addr.IsBroadcast() || addr.IsNull() {
		return errors.New("the node address can't be the broadcast or null address")
	}
	if cfg.PANID > 0xffff {
		return errors.New("PAN ID must fit in 16 bits")
	}
	if cfg.TickRate != uint(rtimer.Rate1MHz) && cfg.TickRate != uint(rtimer.Rate32kHz) {
		logging.Warning("Unusual timer tick rate (%d Hz). Guard times are rounded to ticks", cfg.TickRate)
	}
	if cfg.TickRate == 0 {
		return errors.New("timer tick rate can't be zero")
	}
	if err := cfg.Timing.Validate(); err != nil {
		return fmt.Errorf("slot timing: %v", err)
	}
	seq, err := schedule.SequenceByName(cfg.Hopping)
	if err != nil {
		return fmt.Errorf("hopping sequence %q: %v", cfg.Hopping, err)
	}
	if cfg.ScanChannel != 0 {
		found := false
		for _, ch := range seq {
			if uint(ch) == cfg.ScanChannel {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("scan channel %d isn't in the hopping sequence", cfg.ScanChannel)
		}
	}
	if cfg.SlotframeLength == 0 || cfg.SlotframeLength > 0xffff {
		return errors.New("slotframe length must be between 1 and 65535")
	}
	if cfg.MaxSlotframes <= 0 || cfg.MaxLinks <= 0 {
		return errors.New("the schedule must hold at least one slotframe and one link")
	}
	if cfg.MaxJoinPriority == 0 || cfg.MaxJoinPriority >= timesync.Unsynchronized {
		return fmt.Errorf("max join priority must be between 1 and %d", timesync.Unsynchronized-1)
	}
	if cfg.KeepalivePeriod <= 0 || cfg.EBPeriod <= 0 {
		return errors.New("keepalive and EB periods must be positive")
	}
	if cfg.KeepalivePeriod >= cfg.MaxKeepalive {
		return errors.New("keepalive period must be shorter than the max keepalive time")
	}
	if cfg.SixPTimeout <= 0 {
		return errors.New("6P timeout must be positive")
	}
	if cfg.SixPSFID > 0xff {
		return errors.New("6P SFID must fit in 8 bits")
	}
	if cfg.SixPSFID != sixp.SimpleSFID {
		logging.Warning("Only the simple scheduling function (SFID %d) is built in. Requests for SFID %d will be rejected", sixp.SimpleSFID, cfg.SixPSFID)
	}
	if cfg.HTTPServerPort < 0 || cfg.DebugPort < 0 {
		return errors.New("port numbers can't be negative")
	}
	if cfg.QueueLength <= 0 || cfg.MaxNeighbors <= 0 {
		return errors.New("queue length and neighbor count must be positive")
	}
	if cfg.Coordinator && cfg.MaxKeepalive < cfg.EBPeriod {
		logging.Warning("EB period (%v) is longer than the max keepalive time (%v). Nodes may desynchronize", cfg.EBPeriod, cfg.MaxKeepalive)
	}
	if cfg.DBConnectionString == "" && !cfg.MemoryDB {
		return errors.New("no backend storage selected. A connection string or in-memory database must be selected")
	}
	if cfg.MemoryMaxLatencyMs < cfg.MemoryMinLatencyMs {
		return errors.New("min memory storage latency must be less than max memory storage latency")
	}
	if cfg.MemoryMaxLatencyMs > 0 && cfg.MemoryMinLatencyMs == cfg.MemoryMaxLatencyMs {
		return errors.New("min and max memory latency cannot be equal")
	}
	if cfg.MQTTBroker != "" && cfg.MQTTTopic == "" {
		return errors.New("MQTT topic must be set if a broker is used")
	}
	if cfg.MQTTBroker == "" {
		logging.Info("No MQTT broker configured. Events are only available on the debug endpoint")
	}
	return nil
}
