package dbstore

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
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/utils"
)

const (
	pgReadyMessage = "ready to accept connections"
	pgStartTimeout = 10 * time.Second
	pgStopTimeout  = time.Second
)

// postgresEmbedded runs a throwaway PostgreSQL server for the tests. Set
// TMPDIR to move the data directory somewhere with enough space.
type postgresEmbedded struct {
	dir     string
	port    int
	invalid bool
	cmd     *exec.Cmd
	exited  chan struct{}
}

func newPostgresEmbedded(dir string) *postgresEmbedded {
	return &postgresEmbedded{dir: dir, exited: make(chan struct{})}
}

// checkPostgresInstallation returns true if the postgres binary can be run
func checkPostgresInstallation() bool {
	return exec.Command("postgres", "--help").Run() == nil
}

// getDBTempDir creates a new directory for the database files
func getDBTempDir() (string, error) {
	dir, err := os.MkdirTemp("", "tschdb")
	if err != nil {
		logging.Error("Unable to create directory for PostgreSQL daemon: %v", err)
		return "", err
	}
	return dir, nil
}

// InitializeNew runs initdb in the data directory
func (p *postgresEmbedded) InitializeNew() error {
	logging.Info("Initializing new database in: %s", p.dir)
	output, err := exec.Command("pg_ctl", "init", "-D", p.dir).CombinedOutput()
	if err != nil {
		logging.Error("Unable to initialise database: %v -- %s", err, string(output))
		p.invalid = true
		return err
	}
	return nil
}

// ConnectionString returns the connection string for the server
func (p *postgresEmbedded) ConnectionString() string {
	return fmt.Sprintf("port=%d dbname=postgres sslmode=disable", p.port)
}

// waitFor scans the reader until the message shows up or the stream ends
func waitFor(r io.Reader, message string, found chan<- bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), message) {
			found <- true
			// Keep draining so the server doesn't block on a full pipe
			io.Copy(io.Discard, r)
			return
		}
	}
	found <- false
}

// Start launches the server on a free port and waits until it accepts
// connections.
func (p *postgresEmbedded) Start() error {
	if p.invalid {
		return fmt.Errorf("database in %s isn't initialized", p.dir)
	}
	port, err := utils.FreePort()
	if err != nil {
		p.invalid = true
		return err
	}
	p.port = port
	p.cmd = exec.Command("postgres",
		"-r", filepath.Join(p.dir, "pg.txt"),
		"-D", p.dir,
		"-k", p.dir,
		"-p", strconv.Itoa(p.port))

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.invalid = true
		return err
	}
	found := make(chan bool, 1)
	go waitFor(stderr, pgReadyMessage, found)

	if err := p.cmd.Start(); err != nil {
		logging.Error("Unable to launch PostgreSQL daemon: %v", err)
		p.invalid = true
		return err
	}
	go func() {
		p.cmd.Wait()
		close(p.exited)
	}()
	logging.Info("PostgreSQL data directory is at %s and daemon is running on port %d", p.dir, p.port)

	select {
	case ok := <-found:
		if !ok {
			return fmt.Errorf("PostgreSQL daemon exited before it was ready")
		}
	case <-time.After(pgStartTimeout):
		return fmt.Errorf("timed out waiting for PostgreSQL daemon")
	}
	return nil
}

// Stop terminates the server and removes the data directory
func (p *postgresEmbedded) Stop() {
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			logging.Warning("Unable to signal PostgreSQL daemon: %v", err)
		}
		select {
		case <-p.exited:
		case <-time.After(pgStopTimeout):
			p.cmd.Process.Kill()
		}
	}
	if err := os.RemoveAll(p.dir); err != nil {
		logging.Warning("Unable to remove temp dir for PostgreSQL instance: %v", err)
	}
}
