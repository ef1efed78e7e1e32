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
import "testing"

func TestHistogram(t *testing.T) {
	h := NewHistogram()

	for j := 0; j < 1000; j++ {
		limit := 1.0
		for i := 0; i < HistogramSize; i++ {
			h.Add(limit - 0.1)
			limit *= 2
		}
	}
	for i, v := range h.Values() {
		if v != 1000 {
			t.Fatalf("Did not get the expected count for index %d: %v (result=%+v)", i, v, h.Values())
		}
	}

	// 512 < 1000 <= 1024
	h.Add(1000)
	if h.Values()[10] != 1001 {
		t.Fatalf("Increment in the wrong place %+v", h.Values())
	}
	// Exact powers of two go in the lower bucket
	h.Add(4)
	if h.Values()[2] != 1001 {
		t.Fatalf("4 should be in bucket 2: %+v", h.Values())
	}
	h.Add(-10)
	if h.Values()[0] != 1001 {
		t.Fatalf("Negative values should be in the first bucket: %+v", h.Values())
	}
}
