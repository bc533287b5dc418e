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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/requeststats"
	"llmrouter/pkg/routing"
)

func nopLogger() log.Logger { return log.NewNopLogger() }

type fakeRegistry struct {
	endpoints []discovery.EndpointInfo
	healthy   bool
}

func (f *fakeRegistry) GetEndpoints() []discovery.EndpointInfo { return f.endpoints }
func (f *fakeRegistry) GetHealth() bool                        { return f.healthy }

type fakeScraper struct {
	stats   map[string]enginestats.Stats
	healthy bool
}

func (f *fakeScraper) GetStats() map[string]enginestats.Stats { return f.stats }
func (f *fakeScraper) GetHealth() bool                        { return f.healthy }

func newTestContext(t *testing.T, backend *httptest.Server) *Context {
	t.Helper()
	return &Context{
		Logger: nopLogger(),
		Registry: &fakeRegistry{
			healthy: true,
			endpoints: []discovery.EndpointInfo{
				{URL: backend.URL, ModelNames: []string{"llama-3"}, AddedTimestamp: 100},
			},
		},
		Scraper:    &fakeScraper{healthy: true, stats: map[string]enginestats.Stats{}},
		Monitor:    requeststats.NewMonitor(nopLogger(), 10*time.Second),
		Policy:     routing.NewRoundRobin(),
		HTTPClient: backend.Client(),
		Aliases:    map[string]string{},
		Version:    "test",
	}
}

func TestServeRouteMissingModelReturns400(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "model")
}

func TestServeRouteUnknownModelReturns400(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"does-not-exist"}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "does-not-exist")
}

func TestServeRouteForwardsAndStreamsResponse(t *testing.T) {
	var gotPath, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"text":"hi"}]}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama-3","stream":false}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Contains(t, gotBody, `"llama-3"`)
	assert.JSONEq(t, `{"choices":[{"text":"hi"}]}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServeRoutePassesThroughClientRequestID(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama-3"}`))
	req.Header.Set("X-Request-Id", "client-supplied-id")
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Request-Id"))
}

func TestServeRouteRewritesAliasedModel(t *testing.T) {
	var gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	c.Aliases = map[string]string{"my-alias": "llama-3"}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"my-alias"}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, gotBody, `"llama-3"`)
	assert.NotContains(t, gotBody, "my-alias")
}

func TestServeRouteFiresLifecycleEvents(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama-3"}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)

	stats := c.Monitor.GetStats(time.Now())
	s, ok := stats[backend.URL]
	require.True(t, ok)
	assert.Equal(t, int64(1), s.FinishedRequests)
	assert.Equal(t, 0, s.InDecodingRequests)
	assert.Equal(t, 0, s.InPrefillRequests)
}

func TestServeRouteSetsDebugHeaderWhenEnabled(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	c.DebugHeaders = true
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama-3"}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Equal(t, backend.URL, rec.Header().Get("X-Router-Backend"))
}

func TestServeRouteOmitsDebugHeaderByDefault(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	c := newTestContext(t, backend)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama-3"}`))
	rec := httptest.NewRecorder()

	c.ServeRoute("/v1/chat/completions", rec, req)
	assert.Empty(t, rec.Header().Get("X-Router-Backend"))
}
