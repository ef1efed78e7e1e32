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
	"math"
	"sync"
)

// HistogramSize is the number of buckets in the histogram
const HistogramSize = 32

// Histogram counts samples in buckets with upper bounds 1, 2, 4, 8 and so
// on. The last bucket holds everything above 2^30.
type Histogram struct {
	mutex  *sync.Mutex
	values []int
}

// NewHistogram creates a new Histogram instance
func NewHistogram() *Histogram {
	return &Histogram{mutex: &sync.Mutex{}, values: make([]int, HistogramSize)}
}

// bucket returns the index of the smallest power of two >= v
func bucket(v float64) int {
	if v <= 1 {
		return 0
	}
	idx := int(math.Ceil(math.Log2(v)))
	if idx >= HistogramSize {
		return HistogramSize - 1
	}
	return idx
}

// Add adds a sample
func (h *Histogram) Add(v float64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.values[bucket(v)]++
}

// Values returns a copy of the bucket counts
func (h *Histogram) Values() []int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]int(nil), h.values...)
}

// String returns the bucket counts as a JSON array
func (h *Histogram) String() string {
	buf, err := json.Marshal(h.Values())
	if err != nil {
		return "[]"
	}
	return string(buf)
}
