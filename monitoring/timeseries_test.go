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
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func newTestSeries(interval intervalType) (*TimeSeries, *fakeClock) {
	c := &fakeClock{now: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)}
	ts := NewTimeSeries(interval)
	ts.setClock(c.Now)
	return ts, c
}

func sum(counts []uint32) uint32 {
	ret := uint32(0)
	for _, v := range counts {
		ret += v
	}
	return ret
}

func TestTimeSeriesSingle(t *testing.T) {
	ts := NewTimeSeries(Minutes)
	ts.Increment()
	counts := ts.GetCounts()
	if len(counts) != int(Minutes) {
		t.Fatalf("Expected %d buckets, got %d", Minutes, len(counts))
	}
	if counts[int(Minutes)-1] != 1 {
		t.Fatalf("Last item should be 1 (returned = %v)", counts)
	}
}

// Increment every step and check that all of the buckets get the same count
func testWithSkip(t *testing.T, interval intervalType, skip time.Duration, count int, expectedTotal uint32, perBucket uint32) {
	ts, c := newTestSeries(interval)
	for i := 0; i < count; i++ {
		ts.Increment()
		c.now = c.now.Add(skip)
	}
	// Step back to the last increment
	c.now = c.now.Add(-skip)
	counts := ts.GetCounts()
	if total := sum(counts); total != expectedTotal {
		t.Fatalf("Expected %d increments but found %d (%v)", expectedTotal, total, counts)
	}
	if perBucket == 0 {
		return
	}
	for i, v := range counts {
		if v != perBucket {
			t.Fatalf("Expected %d items on index %d not %d", perBucket, i, v)
		}
	}
}

func TestMinutesSkipSecond(t *testing.T) {
	testWithSkip(t, Minutes, time.Second, 60*60, 60*60, 60)
}

func TestMinutesSkipMinute(t *testing.T) {
	testWithSkip(t, Minutes, time.Minute, 60, 60, 1)
}

func TestMinutesSkipHour(t *testing.T) {
	// Only the last increment is within the last hour
	testWithSkip(t, Minutes, time.Hour, 24, 1, 0)
}

func TestHoursSkipMinute(t *testing.T) {
	testWithSkip(t, Hours, time.Minute, 60*24, 60*24, 60)
}

func TestDaysSkipHours(t *testing.T) {
	// Two rounds but only the last 30 days are kept
	testWithSkip(t, Days, time.Hour, 24*60, 24*30, 24)
}

func TestTimeSeriesRate(t *testing.T) {
	ts, c := newTestSeries(Minutes)
	// Increment 0..59 times for each minute
	for i := 0; i < 60; i++ {
		c.now = c.now.Add(time.Minute)
		ts.Add(uint32(i))
	}
	for i, v := range ts.GetCounts() {
		if v != uint32(i) {
			t.Fatalf("Expected value %d at index %d but got %d", i, i, v)
		}
	}

	// An hour later everything has expired
	c.now = c.now.Add(time.Hour)
	if total := sum(ts.GetCounts()); total != 0 {
		t.Fatalf("Expected all counts to expire but total is %d", total)
	}
	if ts.String() == "[]" {
		t.Fatal("Expected a JSON array")
	}
}

func BenchmarkTimeSeries(b *testing.B) {
	ts := NewTimeSeries(Minutes)
	for i := 0; i < b.N; i++ {
		ts.Increment()
	}
}
