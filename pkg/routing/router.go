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

// Package routing implements the pluggable backend-selection policies
// (§4.D). Policies never mutate their inputs; they are snapshots taken
// by the caller.
package routing

import (
	"net/http"
	"sort"

	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/requeststats"
)

// Request is the subset of an incoming HTTP request a policy may
// consult: its headers (for session-affinity) and nothing else. The
// router never parses the body.
type Request struct {
	Header http.Header
}

// Policy is the tagged-variant contract every routing policy implements.
// Implementations must not mutate endpoints, engineStats, or
// requestStats.
type Policy interface {
	Route(
		endpoints []discovery.EndpointInfo,
		engineStats map[string]enginestats.Stats,
		requestStats map[string]requeststats.Stats,
		req Request,
	) (string, error)
}

// sortedURLs returns the endpoint URLs in deterministic (lexicographic)
// order, independent of the slice's iteration order.
func sortedURLs(endpoints []discovery.EndpointInfo) []string {
	urls := make([]string, len(endpoints))
	for i, ep := range endpoints {
		urls[i] = ep.URL
	}
	sort.Strings(urls)
	return urls
}
