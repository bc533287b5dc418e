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

package enginestats

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-cleanhttp"

	"llmrouter/pkg/discovery"
)

// EndpointSource supplies the current endpoint set for one scrape round.
// The scraper treats the result as a value (§9: "do not share pointers");
// it never holds on to anything owned by the registry between rounds.
type EndpointSource interface {
	GetEndpoints() []discovery.EndpointInfo
}

// Scraper is the engine-stats component (§4.B): a single worker that
// polls every known endpoint's /metrics on a fixed interval.
type Scraper struct {
	logger   log.Logger
	source   EndpointSource
	interval time.Duration
	client   *http.Client
	apiKey   string

	mu      sync.RWMutex
	stats   map[string]Stats
	healthy bool

	stop chan struct{}
	done chan struct{}
}

// NewScraper starts the scrape worker immediately.
func NewScraper(logger log.Logger, source EndpointSource, interval time.Duration, apiKey string) *Scraper {
	s := &Scraper{
		logger:   log.With(logger, "component", "enginestats"),
		source:   source,
		interval: interval,
		client:   cleanhttp.DefaultPooledClient(),
		apiKey:   apiKey,
		stats:    make(map[string]Stats),
		healthy:  true,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// GetStats returns the latest scraped snapshot.
func (s *Scraper) GetStats() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Stats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

func (s *Scraper) GetHealth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Scraper) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Scraper) run() {
	defer close(s.done)

	for {
		s.scrapeOnce()

		// Sleep in 1s ticks so close() returns promptly (§4.B).
		elapsed := time.Duration(0)
		for elapsed < s.interval {
			select {
			case <-s.stop:
				return
			case <-time.After(time.Second):
				elapsed += time.Second
			}
		}
	}
}

func (s *Scraper) scrapeOnce() {
	endpoints := s.source.GetEndpoints()

	fresh := make(map[string]Stats, len(endpoints))
	for _, ep := range endpoints {
		stats, err := s.scrapeOne(ep.URL)
		if err != nil {
			_ = level.Warn(s.logger).Log("msg", "scrape failed, endpoint stats absent this round", "url", ep.URL, "err", err)
			continue
		}
		fresh[ep.URL] = stats
	}

	s.mu.Lock()
	s.stats = fresh
	s.healthy = true
	s.mu.Unlock()
}

func (s *Scraper) scrapeOne(url string) (Stats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/metrics", nil)
	if err != nil {
		return Stats{}, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Stats{}, fmt.Errorf("/metrics returned status %d", resp.StatusCode)
	}

	return parseMetrics(resp.Body), nil
}
