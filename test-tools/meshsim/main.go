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
	"fmt"
	"os"

	"github.com/ExploratoryEngineering/tsch/logging"
)

func main() {
	logging.EnableStderr(false)
	if err := CommandLineParameters.Valid(); err != nil {
		logging.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}
	logging.SetLogLevel(uint(CommandLineParameters.LogLevel))

	mesh, err := NewMesh(CommandLineParameters, func(format string, v ...interface{}) {
		fmt.Printf(format, v...)
	})
	if err != nil {
		logging.Error("Unable to set up the mesh: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Simulating %d nodes (%s) for %v\n", CommandLineParameters.NodeCount,
		CommandLineParameters.Topology, CommandLineParameters.Duration)
	if err := mesh.Start(); err != nil {
		logging.Error("Unable to start the mesh: %v", err)
		os.Exit(1)
	}
	mesh.Run()
	mesh.Stop()
	mesh.PrintSummary()

	if mesh.Synced() != len(mesh.Nodes) {
		fmt.Println("Exiting with unsynchronized nodes")
		os.Exit(1)
	}
}
