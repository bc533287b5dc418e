// Copyright 2026 The llmrouter Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package requeststats

import (
	"strconv"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger() log.Logger {
	return log.NewNopLogger()
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSlidingQPS(t *testing.T) {
	m := NewMonitor(nopLogger(), 10*time.Second)

	for i := 0; i < 20; i++ {
		m.OnNewRequest("u", requestID(i), epoch.Add(time.Duration(i)*time.Second))
	}

	stats := m.GetStats(epoch.Add(19500 * time.Millisecond))
	require.Contains(t, stats, "u")
	assert.InDelta(t, 1.0, stats["u"].QPS, 0.01)
}

func TestTTFTMeasurement(t *testing.T) {
	m := NewMonitor(nopLogger(), 60*time.Second)

	m.OnNewRequest("u", "r", epoch)
	m.OnRequestResponse("u", "r", epoch.Add(500*time.Millisecond))
	m.OnRequestComplete("u", "r", epoch.Add(2*time.Second))

	stats := m.GetStats(epoch.Add(2 * time.Second))["u"]
	assert.InDelta(t, 0.5, stats.TTFT, 1e-9)
	assert.Equal(t, 0, stats.InPrefillRequests)
	assert.Equal(t, 0, stats.InDecodingRequests)
	assert.EqualValues(t, 1, stats.FinishedRequests)
}

func TestCountersNeverNegative(t *testing.T) {
	m := NewMonitor(nopLogger(), 60*time.Second)

	// Completion without a prior new-request/response: should clamp, not panic.
	m.OnRequestComplete("u", "ghost", epoch)
	stats := m.GetStats(epoch)["u"]
	assert.GreaterOrEqual(t, stats.InPrefillRequests, 0)
	assert.GreaterOrEqual(t, stats.InDecodingRequests, 0)

	// Response without prior new-request: no-op, prefill unaffected.
	m.OnRequestResponse("u", "ghost2", epoch)
	stats = m.GetStats(epoch)["u"]
	assert.GreaterOrEqual(t, stats.InPrefillRequests, 0)
}

func TestEmptyWindowSentinel(t *testing.T) {
	m := NewMonitor(nopLogger(), 60*time.Second)
	m.OnNewRequest("u", "r", epoch)

	stats := m.GetStats(epoch)["u"]
	assert.Equal(t, -1.0, stats.TTFT)
	assert.Equal(t, -1.0, stats.AvgLatency)
}

func TestWindowEvictsStaleEntries(t *testing.T) {
	w := newSlidingWindow(10 * time.Second)
	w.update(epoch, 1)
	w.update(epoch.Add(5*time.Second), 1)
	w.touch(epoch.Add(25 * time.Second))
	assert.Equal(t, 0, w.len())
}

func requestID(i int) string {
	return "r" + strconv.Itoa(i)
}
