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
	"fmt"
	"sync"
	"time"
)

// The memory logger keeps the last few diagnostic messages from the event
// exporter in a circular buffer so they can be inspected on the debug
// endpoint. Old entries are overwritten as new entries are added.

// DefaultMemoryLogSize is the number of entries kept by the memory logger
const DefaultMemoryLogSize = 10

// LogEntry is a single log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// NewLogEntry creates a new log entry
func NewLogEntry(message string) LogEntry {
	return LogEntry{
		Timestamp: time.Now(),
		Message:   message,
	}
}

// TimeString converts the timestamp into a time string
func (l *LogEntry) TimeString() string {
	return l.Timestamp.Format(time.RFC3339)
}

// MemoryLogger logs entries to a circular buffer
type MemoryLogger struct {
	mutex   *sync.Mutex
	entries []LogEntry
	index   int
	count   int
}

// NewMemoryLogger creates a new memory logger with room for size entries
func NewMemoryLogger(size int) *MemoryLogger {
	if size <= 0 {
		size = DefaultMemoryLogSize
	}
	return &MemoryLogger{
		mutex:   &sync.Mutex{},
		entries: make([]LogEntry, size),
	}
}

// Append appends a new log item to the log
func (m *MemoryLogger) Append(newEntry LogEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[m.index] = newEntry
	m.index = (m.index + 1) % len(m.entries)
	if m.count < len(m.entries) {
		m.count++
	}
}

// Printf formats and appends a log entry
func (m *MemoryLogger) Printf(format string, v ...interface{}) {
	m.Append(NewLogEntry(fmt.Sprintf(format, v...)))
}

// Items returns the entries, oldest first
func (m *MemoryLogger) Items() []LogEntry {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	size := len(m.entries)
	first := (m.index - m.count + size) % size
	ret := make([]LogEntry, 0, m.count)
	for i := 0; i < m.count; i++ {
		ret = append(ret, m.entries[(first+i)%size])
	}
	return ret
}
