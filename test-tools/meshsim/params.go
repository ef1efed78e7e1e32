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
	"errors"
	"flag"
	"fmt"
	"time"
)

// Params is a struct with the command line parameters, in effect
// the configuration for the mesh simulator
type Params struct {
	NodeCount    int
	Duration     time.Duration
	Step         time.Duration
	Topology     string
	PRR          float64
	MaxDriftPPM  float64
	Seed         int64
	EBPeriod     time.Duration
	SixPCells    int
	DataInterval time.Duration
	SlotLog      bool
	LogLevel     int
}

// Valid validates the parameters
func (p *Params) Valid() error {
	if p.NodeCount < 1 || p.NodeCount > 250 {
		return errors.New("node count must be in the range 1-250")
	}
	if p.Duration <= 0 || p.Step <= 0 {
		return errors.New("duration and step must be positive")
	}
	if p.Topology != "mesh" && p.Topology != "line" {
		return fmt.Errorf("unknown topology %q. Valid topologies are mesh and line", p.Topology)
	}
	if p.PRR <= 0 || p.PRR > 1 {
		return errors.New("PRR must be in the range (0, 1]")
	}
	if p.MaxDriftPPM < 0 || p.MaxDriftPPM > 100 {
		return errors.New("drift must be in the range 0-100 ppm")
	}
	if p.LogLevel < 0 || p.LogLevel > 3 {
		return fmt.Errorf("unknown log level. Valid values are (from low to high) 0, 1, 2 or 3")
	}
	return nil
}

// CommandLineParameters is the parameters supplied via the command line
var CommandLineParameters Params

func init() {
	flag.IntVar(&CommandLineParameters.NodeCount, "nodes", 5, "Number of nodes. The first node is the PAN coordinator")
	flag.DurationVar(&CommandLineParameters.Duration, "duration", 5*time.Minute, "Simulated run time")
	flag.DurationVar(&CommandLineParameters.Step, "step", 20*time.Millisecond, "Virtual time between yields to the node pipelines")
	flag.StringVar(&CommandLineParameters.Topology, "topology", "mesh", "Topology (mesh: everyone hears everyone, line: only the nearest neighbors)")
	flag.Float64Var(&CommandLineParameters.PRR, "prr", 1.0, "Packet reception ratio for links")
	flag.Float64Var(&CommandLineParameters.MaxDriftPPM, "drift", 20, "Maximum clock drift for a node (ppm)")
	flag.Int64Var(&CommandLineParameters.Seed, "seed", 1, "Random seed")
	flag.DurationVar(&CommandLineParameters.EBPeriod, "eb-period", 4*time.Second, "Enhanced beacon period")
	flag.IntVar(&CommandLineParameters.SixPCells, "sixp-cells", 1, "Dedicated cells requested from the time source")
	flag.DurationVar(&CommandLineParameters.DataInterval, "data-interval", 30*time.Second, "Interval between data frames to the time source (0 = no data)")
	flag.BoolVar(&CommandLineParameters.SlotLog, "slotlog", false, "Print every slot")
	flag.IntVar(&CommandLineParameters.LogLevel, "loglevel", 2, "Log level (0: Debug, 1: Info, 2: Warning: 3: Error)")
	flag.Parse()
}
