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
	"encoding/json"
	"sync"
)

// AverageGauge keeps min, max and average over the last N samples
type AverageGauge struct {
	mutex   *sync.Mutex
	samples []float64
	next    int
	count   int
}

// Averages is the calculated averages. Count is the total number of
// samples added, not just the ones in the window.
type Averages struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// NewAverageGauge creates a gauge with a window of size samples
func NewAverageGauge(size int) *AverageGauge {
	return &AverageGauge{mutex: &sync.Mutex{}, samples: make([]float64, size)}
}

// Add adds a new value to the gauge
func (a *AverageGauge) Add(value float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.samples[a.next] = value
	a.next = (a.next + 1) % len(a.samples)
	a.count++
}

// Calculate returns the averages for the current window
func (a *AverageGauge) Calculate() Averages {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	ret := Averages{Count: a.count}
	window := a.samples
	if a.count < len(window) {
		window = window[:a.count]
	}
	if len(window) == 0 {
		return ret
	}
	ret.Min, ret.Max = window[0], window[0]
	total := 0.0
	for _, v := range window {
		total += v
		if v < ret.Min {
			ret.Min = v
		}
		if v > ret.Max {
			ret.Max = v
		}
	}
	ret.Average = total / float64(len(window))
	return ret
}

// String returns the averages as JSON
func (a *AverageGauge) String() string {
	buf, err := json.Marshal(a.Calculate())
	if err != nil {
		return "{}"
	}
	return string(buf)
}
