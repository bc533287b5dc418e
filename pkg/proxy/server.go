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

package proxy

import (
	"net/http"

	"llmrouter/internal/httpjson"
)

// routedPaths lists every OpenAI-compatible path the proxy forwards
// verbatim to the chosen backend (§4.F).
var routedPaths = []string{
	"/v1/chat/completions",
	"/v1/completions",
	"/v1/embeddings",
	"/v1/rerank",
	"/rerank",
	"/v1/score",
	"/score",
}

// NewMux builds the router's public HTTP surface (§4.F).
func (c *Context) NewMux() http.Handler {
	mux := http.NewServeMux()

	for _, path := range routedPaths {
		p := path
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				httpjson.WriteError(c.Logger, w, http.StatusMethodNotAllowed, "Method not allowed.")
				return
			}
			c.ServeRoute(p, w, r)
		})
	}

	mux.HandleFunc("/v1/models", c.handleModels)
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/version", c.handleVersion)

	return recoverMiddleware(c.Logger, mux)
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

// handleModels aggregates the distinct models advertised across every
// known endpoint (§4.F). A model served by more than one endpoint is
// reported once, keeping the earliest AddedTimestamp seen for it.
func (c *Context) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpjson.WriteError(c.Logger, w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	seen := make(map[string]int64)
	var order []string
	for _, ep := range c.Registry.GetEndpoints() {
		for _, name := range ep.ModelNames {
			if existing, ok := seen[name]; !ok || ep.AddedTimestamp < existing {
				if !ok {
					order = append(order, name)
				}
				seen[name] = ep.AddedTimestamp
			}
		}
	}

	resp := modelsResponse{Object: "list", Data: make([]modelObject, 0, len(order))}
	for _, name := range order {
		resp.Data = append(resp.Data, modelObject{
			ID:      name,
			Object:  "model",
			Created: seen[name],
			OwnedBy: "vllm",
		})
	}

	httpjson.WriteJSON(c.Logger, w, http.StatusOK, resp)
}

type healthResponse struct {
	Status     string `json:"status"`
	Discovery  bool   `json:"discovery_healthy"`
	EngineScan bool   `json:"engine_stats_healthy"`
}

// handleHealth reports 200 only when both the discovery registry and
// the engine-stats scraper report their background workers alive
// (§4.F); otherwise 503 with the individual diagnosis.
func (c *Context) handleHealth(w http.ResponseWriter, r *http.Request) {
	discoveryOK := c.Registry.GetHealth()
	scraperOK := c.Scraper.GetHealth()

	resp := healthResponse{
		Discovery:  discoveryOK,
		EngineScan: scraperOK,
	}

	if discoveryOK && scraperOK {
		resp.Status = "ok"
		httpjson.WriteJSON(c.Logger, w, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	httpjson.WriteJSON(c.Logger, w, http.StatusServiceUnavailable, resp)
}

type versionResponse struct {
	Version string `json:"version"`
}

func (c *Context) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteJSON(c.Logger, w, http.StatusOK, versionResponse{Version: c.Version})
}
