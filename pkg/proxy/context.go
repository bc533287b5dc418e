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

// Package proxy implements the streaming request-dispatch data plane
// (§4.E) and the HTTP surface that exposes it (§4.F).
//
// Per §9's design note, this package replaces the source's global
// singletons (registry, scraper, monitor, router, HTTP client) with an
// explicit Context value created once at startup and threaded into
// every handler, so tests can instantiate isolated instances instead of
// reaching for process-wide state.
package proxy

import (
	"net/http"

	"github.com/go-kit/log"

	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/requeststats"
	"llmrouter/pkg/routing"
)

// EndpointSource is the subset of discovery.Registry the proxy consults.
type EndpointSource interface {
	GetEndpoints() []discovery.EndpointInfo
	GetHealth() bool
}

// EngineStatsSource is the subset of enginestats.Scraper the proxy consults.
type EngineStatsSource interface {
	GetStats() map[string]enginestats.Stats
	GetHealth() bool
}

// Context bundles every component a request handler needs. It holds no
// request-scoped state; one Context is created at startup and shared by
// all concurrent handlers.
type Context struct {
	Logger log.Logger

	Registry   EndpointSource
	Scraper    EngineStatsSource
	Monitor    *requeststats.Monitor
	Policy     routing.Policy
	HTTPClient *http.Client

	// Aliases maps a client-facing model name to the name the router
	// should actually request from the backend (§4.E step 4).
	Aliases map[string]string

	// DebugHeaders, when true, adds X-Router-Backend to proxied
	// responses (a supplemented, opt-in debug aid; see SPEC_FULL.md).
	DebugHeaders bool

	Version string
}
