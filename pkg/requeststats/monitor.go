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
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Monitor is the request-stats component (§4.C). All operations are
// serialized under a single lock; none suspend on I/O.
type Monitor struct {
	logger log.Logger
	window time.Duration

	mu             sync.Mutex
	engines        map[string]*engineState
	firstQueryTime time.Time
	haveFirst      bool
}

// NewMonitor creates a monitor with sliding-window size w.
func NewMonitor(logger log.Logger, w time.Duration) *Monitor {
	return &Monitor{
		logger:  log.With(logger, "component", "requeststats"),
		window:  w,
		engines: make(map[string]*engineState),
	}
}

func (m *Monitor) engine(url string) *engineState {
	e, ok := m.engines[url]
	if !ok {
		e = newEngineState(m.window)
		m.engines[url] = e
	}
	return e
}

// OnNewRequest records the arrival of a request.
func (m *Monitor) OnNewRequest(url, requestID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haveFirst {
		m.firstQueryTime = t
		m.haveFirst = true
	}

	e := m.engine(url)
	e.pending[requestID] = &pending{start: t}
	e.inPrefill++
	e.qpsWindow.update(t, 1)
}

// OnRequestResponse records the first response byte of a request.
func (m *Monitor) OnRequestResponse(url, requestID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.engine(url)
	p, ok := e.pending[requestID]
	if !ok {
		// Unknown (url, rid): no-op per §4.C.
		return
	}
	p.firstByte = t
	p.hasFirst = true

	if e.inPrefill > 0 {
		e.inPrefill--
	} else {
		_ = level.Warn(m.logger).Log("msg", "in_prefill would go negative, clamped", "url", url, "request_id", requestID)
	}
	e.inDecoding++
	e.ttftWindow.update(t, t.Sub(p.start).Seconds())
}

// OnRequestComplete records the completion of a request.
func (m *Monitor) OnRequestComplete(url, requestID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.engine(url)
	p, ok := e.pending[requestID]
	if !ok {
		_ = level.Warn(m.logger).Log("msg", "completion for unknown request, ignored", "url", url, "request_id", requestID)
		return
	}
	delete(e.pending, requestID)

	if e.inDecoding > 0 {
		e.inDecoding--
	} else {
		_ = level.Warn(m.logger).Log("msg", "in_decoding would go negative, clamped", "url", url, "request_id", requestID)
	}
	e.finished++
	e.latencyWindow.update(t, t.Sub(p.start).Seconds())
}

// OnRequestSwapped records an engine-level swap event for the request.
func (m *Monitor) OnRequestSwapped(url, _ string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.engine(url).swapped++
}

// GetStats returns a snapshot of per-engine stats as of now.
func (m *Monitor) GetStats(now time.Time) map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Stats, len(m.engines))
	for url, e := range m.engines {
		e.qpsWindow.touch(now)
		e.ttftWindow.touch(now)
		e.latencyWindow.touch(now)

		windowSeconds := m.window.Seconds()
		qps := 0.0
		if windowSeconds > 0 {
			qps = e.qpsWindow.sum() / windowSeconds
		}

		uptime := time.Duration(0)
		if m.haveFirst {
			uptime = now.Sub(m.firstQueryTime)
		}

		out[url] = Stats{
			QPS:                qps,
			TTFT:               e.ttftWindow.average(),
			AvgLatency:         e.latencyWindow.average(),
			AvgITL:             -1,
			InPrefillRequests:  e.inPrefill,
			InDecodingRequests: e.inDecoding,
			FinishedRequests:   e.finished,
			NumSwappedRequests: e.swapped,
			Uptime:             uptime,
		}
	}
	return out
}
