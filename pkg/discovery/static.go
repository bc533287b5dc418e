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

package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"
)

const healthCheckInterval = 60 * time.Second

// StaticConfig is the parallel-array construction input for the static
// registry variant (§4.A).
type StaticConfig struct {
	URLs        []string
	Models      []string
	ModelLabels []string
	ModelTypes  []ModelType

	// EnableHealthCheck turns on the background probe loop. When false,
	// every (url, model) pair is always considered healthy.
	EnableHealthCheck bool
	Client            *http.Client
}

// pairKey identifies one (url, model) combination tracked for health.
type pairKey struct {
	url   string
	model string
}

// Static is the non-watched EndpointRegistry variant: a fixed endpoint
// set, optionally health-checked on a 60s cadence.
type Static struct {
	logger log.Logger
	client *http.Client

	mu        sync.RWMutex
	endpoints []EndpointInfo  // full configured set, order preserved
	unhealthy map[pairKey]bool

	addedAt int64

	healthEnabled bool
	healthy       bool // liveness of the background worker itself
	stop          chan struct{}
	done          chan struct{}
}

// NewStatic constructs a static registry from parallel arrays. Mismatched
// lengths are a construction error (ConfigInvalid).
func NewStatic(logger log.Logger, now int64, cfg StaticConfig) (*Static, error) {
	n := len(cfg.URLs)
	if len(cfg.Models) != n {
		return nil, fmt.Errorf("static discovery: %d urls but %d models: %w", n, len(cfg.Models), errConfigInvalid)
	}
	if cfg.ModelLabels != nil && len(cfg.ModelLabels) != n {
		return nil, fmt.Errorf("static discovery: %d urls but %d model_labels: %w", n, len(cfg.ModelLabels), errConfigInvalid)
	}
	if cfg.ModelTypes != nil && len(cfg.ModelTypes) != n {
		return nil, fmt.Errorf("static discovery: %d urls but %d model_types: %w", n, len(cfg.ModelTypes), errConfigInvalid)
	}

	byURL := map[string][]string{}
	order := []string{}
	labelOf := map[string]string{}
	for i, u := range cfg.URLs {
		if _, ok := byURL[u]; !ok {
			order = append(order, u)
		}
		byURL[u] = append(byURL[u], cfg.Models[i])
		if cfg.ModelLabels != nil {
			labelOf[u] = cfg.ModelLabels[i]
		}
	}

	endpoints := make([]EndpointInfo, 0, len(order))
	for _, u := range order {
		endpoints = append(endpoints, EndpointInfo{
			URL:            u,
			ModelNames:     byURL[u],
			ModelLabel:     labelOf[u],
			AddedTimestamp: now,
			Healthy:        true,
		})
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	s := &Static{
		logger:        log.With(logger, "component", "discovery.static"),
		client:        client,
		endpoints:     endpoints,
		unhealthy:     make(map[pairKey]bool),
		addedAt:       now,
		healthEnabled: cfg.EnableHealthCheck,
		healthy:       true,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if cfg.EnableHealthCheck {
		go s.healthCheckLoop(cfg)
	} else {
		close(s.done)
	}
	return s, nil
}

var errConfigInvalid = fmt.Errorf("invalid static discovery configuration")

// GetEndpoints returns the configured endpoints with unhealthy
// (url, model) pairs filtered out of ModelNames; an endpoint with no
// remaining healthy models is dropped entirely.
func (s *Static) GetEndpoints() []EndpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EndpointInfo, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		healthyModels := make([]string, 0, len(ep.ModelNames))
		for _, m := range ep.ModelNames {
			if !s.unhealthy[pairKey{ep.URL, m}] {
				healthyModels = append(healthyModels, m)
			}
		}
		if len(healthyModels) == 0 {
			continue
		}
		cp := ep
		cp.ModelNames = healthyModels
		out = append(out, cp)
	}
	return out
}

func (s *Static) GetHealth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Static) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Static) healthCheckLoop(cfg StaticConfig) {
	defer close(s.done)

	urls := cfg.URLs
	models := cfg.Models
	types := cfg.ModelTypes

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		limiter := rate.NewLimiter(rate.Every(healthCheckInterval/time.Duration(max(len(urls), 1))), 1)
		for i := range urls {
			select {
			case <-s.stop:
				return
			default:
			}
			_ = limiter.Wait(context.Background())

			var typ ModelType
			if types != nil {
				typ = types[i]
			} else {
				typ = ModelTypeChat
			}
			ok := s.probe(urls[i], models[i], typ)

			s.mu.Lock()
			s.unhealthy[pairKey{urls[i], models[i]}] = !ok
			s.healthy = true
			s.mu.Unlock()
		}

		select {
		case <-s.stop:
			return
		case <-time.After(healthCheckInterval):
		}
	}
}

func (s *Static) probe(url, model string, typ ModelType) bool {
	var (
		path string
		body []byte
	)
	switch typ {
	case ModelTypeChat:
		path = "/v1/chat/completions"
		body, _ = json.Marshal(map[string]any{
			"model":      model,
			"messages":   []map[string]string{{"role": "user", "content": "hi"}},
			"max_tokens": 1,
		})
	case ModelTypeCompletion:
		path = "/v1/completions"
		body, _ = json.Marshal(map[string]any{"model": model, "prompt": "hi", "max_tokens": 1})
	case ModelTypeEmbeddings:
		path = "/v1/embeddings"
		body, _ = json.Marshal(map[string]any{"model": model, "input": "hi"})
	case ModelTypeRerank:
		path = "/v1/rerank"
		body, _ = json.Marshal(map[string]any{"model": model, "query": "hi", "documents": []string{"hi"}})
	case ModelTypeScore:
		path = "/v1/score"
		body, _ = json.Marshal(map[string]any{"model": model, "text_1": "hi", "text_2": "hi"})
	default:
		path = "/v1/chat/completions"
	}

	req, err := http.NewRequest(http.MethodPost, url+path, bytes.NewReader(body))
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "health check request build failed", "url", url, "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "health check failed", "url", url, "model", model, "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
