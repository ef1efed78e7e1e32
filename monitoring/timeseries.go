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
	"time"
)

// TimeSeries counts events in fixed intervals (minutes, hours or days) and
// keeps the most recent intervals. The counts read out are the number of
// events per interval, ie a rate.
type TimeSeries struct {
	mutex  *sync.Mutex
	width  time.Duration
	counts []uint32
	newest int64 // Interval number of the newest bucket
	now    func() time.Time
}

type intervalType int

// The intervals for TimeSeries. The value is the number of buckets kept.
const (
	Minutes = intervalType(60)
	Hours   = intervalType(24)
	Days    = intervalType(30)
)

func (i intervalType) width() time.Duration {
	switch i {
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// NewTimeSeries creates a new time series
func NewTimeSeries(interval intervalType) *TimeSeries {
	ret := &TimeSeries{
		mutex:  &sync.Mutex{},
		width:  interval.width(),
		counts: make([]uint32, interval),
	}
	ret.setClock(time.Now)
	return ret
}

func (t *TimeSeries) setClock(now func() time.Time) {
	t.now = now
	t.newest = t.interval(now())
}

func (t *TimeSeries) interval(now time.Time) int64 {
	return now.UnixNano() / int64(t.width)
}

func (t *TimeSeries) index(interval int64) int {
	return int(interval % int64(len(t.counts)))
}

// advance moves the newest bucket up to the current interval and clears
// the buckets skipped on the way.
func (t *TimeSeries) advance() {
	current := t.interval(t.now())
	diff := current - t.newest
	if diff <= 0 {
		return
	}
	if diff >= int64(len(t.counts)) {
		for i := range t.counts {
			t.counts[i] = 0
		}
	} else {
		for i := int64(1); i <= diff; i++ {
			t.counts[t.index(t.newest+i)] = 0
		}
	}
	t.newest = current
}

// Increment adds one to the current interval
func (t *TimeSeries) Increment() {
	t.Add(1)
}

// Add adds n to the current interval
func (t *TimeSeries) Add(n uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.advance()
	t.counts[t.index(t.newest)] += n
}

// GetCounts returns the counts for each interval. The oldest interval is
// first, the current interval last.
func (t *TimeSeries) GetCounts() []uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.advance()
	ret := make([]uint32, len(t.counts))
	for i := range ret {
		ret[i] = t.counts[t.index(t.newest+1+int64(i))]
	}
	return ret
}

// MarshalJSON dumps the time series as an array
func (t *TimeSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.GetCounts())
}

// String returns the counts as a JSON array. This makes the time series an
// expvar.Var.
func (t *TimeSeries) String() string {
	buf, err := t.MarshalJSON()
	if err != nil {
		return "[]"
	}
	return string(buf)
}
