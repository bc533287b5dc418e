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

// Package requeststats tracks per-engine in-flight request counts, QPS,
// TTFT, and latency over a sliding window, driven purely by lifecycle
// events fired from the streaming proxy.
package requeststats

import "time"

// Stats is the sliding-window view of one engine's request load.
type Stats struct {
	QPS                 float64
	TTFT                float64 // seconds; -1 if no first-byte samples in the window
	AvgLatency          float64 // seconds; -1 if no completed windowed requests
	AvgITL              float64 // seconds; -1 if not computed
	InPrefillRequests   int
	InDecodingRequests  int
	FinishedRequests    int64
	NumSwappedRequests  int64
	Uptime              time.Duration
}

// pending tracks one in-flight request between on_new_request and
// on_request_complete.
type pending struct {
	start     time.Time
	firstByte time.Time
	hasFirst  bool
}

type engineState struct {
	inPrefill  int
	inDecoding int
	finished   int64
	swapped    int64

	qpsWindow     *slidingWindow
	ttftWindow    *slidingWindow
	latencyWindow *slidingWindow

	pending map[string]*pending // keyed by request id
}

func newEngineState(window time.Duration) *engineState {
	return &engineState{
		qpsWindow:     newSlidingWindow(window),
		ttftWindow:    newSlidingWindow(window),
		latencyWindow: newSlidingWindow(window),
		pending:       make(map[string]*pending),
	}
}
