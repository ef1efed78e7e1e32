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
	"testing"
)

func TestMemoryLogger(t *testing.T) {
	logger := NewMemoryLogger(DefaultMemoryLogSize)

	if len(logger.Items()) != 0 {
		t.Fatal("Memory log should contain 0 items but had ", len(logger.Items()))
	}

	logger.Append(NewLogEntry("1"))
	if len(logger.Items()) != 1 {
		t.Fatal("Memory log should contain 1 item but had ", len(logger.Items()))
	}

	for j := 0; j < 100; j++ {
		logger.Printf("Item %d", j)
	}

	if len(logger.Items()) != DefaultMemoryLogSize {
		t.Fatalf("Memory log should contain %d items but had %d", DefaultMemoryLogSize, len(logger.Items()))
	}

	const lastMessage = "This is the last log entry"
	logger.Append(NewLogEntry(lastMessage))

	items := logger.Items()
	if items[DefaultMemoryLogSize-1].Message != lastMessage {
		t.Fatalf("Last message should contain %s but had %s (list = %v)", lastMessage, items[DefaultMemoryLogSize-1].Message, items)
	}
	if items[0].Message != fmt.Sprintf("Item %d", 100-DefaultMemoryLogSize+1) {
		t.Fatalf("Oldest entry is wrong: %s", items[0].Message)
	}
}

func TestMemoryLoggerSize(t *testing.T) {
	logger := NewMemoryLogger(0)
	for j := 0; j < 3; j++ {
		logger.Printf("%d", j)
	}
	items := logger.Items()
	if len(items) != 3 || items[0].Message != "0" || items[2].Message != "2" {
		t.Fatalf("Unexpected items %v", items)
	}
	t.Logf("Log item = %s: %s", items[0].TimeString(), items[0].Message)
}

// Benchmark logging
func BenchmarkLogging(b *testing.B) {
	logger := NewMemoryLogger(DefaultMemoryLogSize)

	for i := 0; i < b.N; i++ {
		logger.Append(NewLogEntry("something"))
	}
}

// Benchmark log list retrieval
func BenchmarkRetrieval(b *testing.B) {
	logger := NewMemoryLogger(DefaultMemoryLogSize)

	for i := 0; i < 10; i++ {
		logger.Append(NewLogEntry("something"))
	}

	for i := 0; i < b.N; i++ {
		logger.Items()
	}
}
