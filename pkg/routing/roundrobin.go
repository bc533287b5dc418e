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

package routing

import (
	"errors"
	"sync"

	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/requeststats"
)

// ErrNoEndpoints is returned when Route is invoked with an empty
// endpoint set. Callers (the HTTP surface) are expected to reject the
// request with 400 before ever calling Route (§4.D), so this is a
// defensive last resort, not the documented path.
var ErrNoEndpoints = errors.New("routing: no endpoints available")

// RoundRobin cycles through endpoints sorted by URL. The only mutable
// state is the counter.
type RoundRobin struct {
	mu sync.Mutex
	i  uint64
}

// NewRoundRobin returns a fresh round-robin policy with its counter at 0.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Route(
	endpoints []discovery.EndpointInfo,
	_ map[string]enginestats.Stats,
	_ map[string]requeststats.Stats,
	_ Request,
) (string, error) {
	if len(endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	urls := sortedURLs(endpoints)

	r.mu.Lock()
	idx := r.i % uint64(len(urls))
	r.i++
	r.mu.Unlock()

	return urls[idx], nil
}
