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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"llmrouter/internal/httpjson"
	"llmrouter/pkg/discovery"
	"llmrouter/pkg/routing"
)

// hop-by-hop headers are never forwarded in either direction (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeRoute handles one incoming request for a routed endpoint path
// (chat/completions, completions, embeddings, rerank, score), following
// the sequence in §4.E.
func (c *Context) ServeRoute(endpointPath string, w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", requestID)

	logger := c.Logger

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpjson.WriteError(logger, w, http.StatusBadRequest, "Invalid request: failed to read body.")
		return
	}

	model, body, err := resolveModel(body, c.Aliases)
	if err != nil {
		httpjson.WriteError(logger, w, http.StatusBadRequest, "Invalid request: missing 'model' in request body.")
		return
	}

	endpoints := filterByModel(c.Registry.GetEndpoints(), model)
	if len(endpoints) == 0 {
		httpjson.WriteError(logger, w, http.StatusBadRequest, fmt.Sprintf("Model %s not found.", model))
		return
	}

	engineStats := c.Scraper.GetStats()
	now := time.Now()
	requestStats := c.Monitor.GetStats(now)

	backendURL, err := c.Policy.Route(endpoints, engineStats, requestStats, routing.Request{Header: r.Header})
	if err != nil {
		// Defensive: §4.D says the caller must not invoke Route on an
		// empty set, and filterByModel already guaranteed non-empty.
		httpjson.WriteError(logger, w, http.StatusInternalServerError, "No backend available.")
		return
	}

	c.Monitor.OnNewRequest(backendURL, requestID, now)
	c.forwardAndStream(backendURL, endpointPath, requestID, body, w, r)
}

// resolveModel parses body as JSON, requires a string "model" field, and
// substitutes its alias target if one is configured, re-serializing the
// body so Content-Length stays consistent (§4.E steps 3-4).
func resolveModel(body []byte, aliases map[string]string) (model string, out []byte, err error) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	rawModel, ok := parsed["model"].(string)
	if !ok || rawModel == "" {
		return "", nil, fmt.Errorf("missing model field")
	}

	model = rawModel
	if target, ok := aliases[rawModel]; ok {
		model = target
		parsed["model"] = target
		rewritten, err := json.Marshal(parsed)
		if err != nil {
			return "", nil, fmt.Errorf("re-serializing aliased body: %w", err)
		}
		return model, rewritten, nil
	}
	return model, body, nil
}

func filterByModel(endpoints []discovery.EndpointInfo, model string) []discovery.EndpointInfo {
	out := make([]discovery.EndpointInfo, 0, len(endpoints))
	for _, ep := range endpoints {
		for _, m := range ep.ModelNames {
			if m == model {
				out = append(out, ep)
				break
			}
		}
	}
	return out
}

// forwardAndStream opens the outbound call to the chosen backend and
// relays headers, status, and body chunks back to the client, firing
// the response/complete lifecycle events at the right points (§4.E
// steps 7-10, the state machine in §4.E).
func (c *Context) forwardAndStream(backendURL, endpointPath, requestID string, body []byte, w http.ResponseWriter, r *http.Request) {
	logger := c.Logger
	complete := func() { c.Monitor.OnRequestComplete(backendURL, requestID, time.Now()) }

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, backendURL+endpointPath, bytes.NewReader(body))
	if err != nil {
		_ = level.Error(logger).Log("msg", "building backend request failed", "err", err)
		httpjson.WriteError(logger, w, http.StatusBadGateway, "Failed to build backend request.")
		complete()
		return
	}
	copyHeaders(outReq.Header, r.Header)
	outReq.ContentLength = int64(len(body))
	outReq.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp, err := c.HTTPClient.Do(outReq)
	if err != nil {
		_ = level.Warn(logger).Log("msg", "backend connect failed", "url", backendURL, "err", err)
		httpjson.WriteError(logger, w, http.StatusBadGateway, "Backend connection failed.")
		complete()
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	if c.DebugHeaders {
		w.Header().Set("X-Router-Backend", backendURL)
	}
	w.WriteHeader(resp.StatusCode)

	relayBody(w, resp.Body, func() {
		c.Monitor.OnRequestResponse(backendURL, requestID, time.Now())
	})
	complete()
}

// relayBody copies chunks from src to a flushing writer, invoking
// onFirstByte exactly once, on the first non-empty chunk.
func relayBody(w http.ResponseWriter, src io.Reader, onFirstByte func()) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	first := true

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if first {
				onFirstByte()
				first = false
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(header) == http.CanonicalHeaderKey(h) {
			return true
		}
	}
	return false
}
