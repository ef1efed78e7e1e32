package monitoring

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
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/trace"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
)

const maxTraceDuration = 5 * time.Minute

// tracer runs execution traces on request. Traces are the quickest way to
// see whether the slot timer goroutine is delayed by the background work.
// Only one trace can run at a time.
type tracer struct {
	dir     string
	running atomic.Bool
}

// parseDuration reads the trace length in seconds from the body
func parseDuration(r io.Reader) time.Duration {
	buf, err := io.ReadAll(io.LimitReader(r, 32))
	if err != nil {
		return 0
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil || val < 1 {
		return 0
	}
	d := time.Duration(val) * time.Second
	if d > maxTraceDuration {
		d = maxTraceDuration
	}
	return d
}

func (t *tracer) run(d time.Duration) {
	defer t.running.Store(false)
	name := filepath.Join(t.dir, time.Now().Format("trace_tsch_2006-01-02T150405.out"))
	f, err := os.Create(name)
	if err != nil {
		logging.Error("Unable to create trace file '%s': %v", name, err)
		return
	}
	defer f.Close()
	if err := trace.Start(f); err != nil {
		logging.Error("Unable to start the trace: %v", err)
		return
	}
	logging.Warning("Trace started for %v. Trace file name is %s", d, name)
	time.Sleep(d)
	trace.Stop()
	logging.Warning("Trace is completed. Results are placed in %s", name)
}

// ServeHTTP starts a trace on POST. The body is the number of seconds to
// trace. 409 is returned while a trace is running.
func (t *tracer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Illegal method", http.StatusMethodNotAllowed)
		return
	}
	d := parseDuration(r.Body)
	if d == 0 {
		http.Error(w, "Specify time to trace in body", http.StatusBadRequest)
		return
	}
	if !t.running.CompareAndSwap(false, true) {
		http.Error(w, "Trace in progress", http.StatusConflict)
		return
	}
	go t.run(d)
	io.WriteString(w, fmt.Sprintf("Trace started for %v", d))
}
