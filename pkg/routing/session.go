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
	"crypto/sha256"
	"math/big"
	"sync"

	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/requeststats"
)

// Session is the session-affinity policy (§4.D): requests bearing a
// session header are pinned to a consistently-hashed backend; requests
// without one fall back to lowest-QPS selection.
//
// The hash-mod-n scheme is intentionally the trivial one the spec
// mandates — it gives determinism but not minimal movement under
// membership change. A hash ring with virtual nodes would reduce churn
// but is left as future, optional work (§9).
type Session struct {
	headerName string

	mu       sync.Mutex
	sessions map[string]string // session id -> url
}

// NewSession constructs a session-affinity policy keyed on the given
// HTTP header name.
func NewSession(headerName string) *Session {
	return &Session{
		headerName: headerName,
		sessions:   make(map[string]string),
	}
}

func (s *Session) Route(
	endpoints []discovery.EndpointInfo,
	_ map[string]enginestats.Stats,
	requestStats map[string]requeststats.Stats,
	req Request,
) (string, error) {
	if len(endpoints) == 0 {
		return "", ErrNoEndpoints
	}

	sid := req.Header.Get(s.headerName)
	if sid == "" {
		return lowestQPS(endpoints, requestStats), nil
	}

	urls := sortedURLs(endpoints)

	s.mu.Lock()
	defer s.mu.Unlock()

	if mapped, ok := s.sessions[sid]; ok && contains(urls, mapped) {
		return mapped, nil
	}

	url := hashAssign(sid, urls)
	s.sessions[sid] = url
	return url, nil
}

// hashAssign picks endpoints[SHA256(sid) mod n] from the sorted list.
func hashAssign(sid string, sortedURLs []string) string {
	sum := sha256.Sum256([]byte(sid))
	n := big.NewInt(int64(len(sortedURLs)))
	h := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(h, n)
	return sortedURLs[idx.Int64()]
}

func contains(urls []string, target string) bool {
	for _, u := range urls {
		if u == target {
			return true
		}
	}
	return false
}

// lowestQPS returns the endpoint with the lowest QPS from requestStats,
// treating a missing entry as QPS=0. Ties go to the first endpoint in
// iteration order that attains the minimum, whether or not it has a
// stats entry.
func lowestQPS(endpoints []discovery.EndpointInfo, requestStats map[string]requeststats.Stats) string {
	best := endpoints[0].URL
	bestQPS := qpsOf(best, requestStats)
	for _, ep := range endpoints[1:] {
		q := qpsOf(ep.URL, requestStats)
		if q < bestQPS {
			bestQPS = q
			best = ep.URL
		}
	}
	return best
}

func qpsOf(url string, requestStats map[string]requeststats.Stats) float64 {
	if s, ok := requestStats[url]; ok {
		return s.QPS
	}
	return 0
}
