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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStaticRejectsMismatchedLengths(t *testing.T) {
	_, err := NewStatic(log.NewNopLogger(), 0, StaticConfig{
		URLs:   []string{"http://a"},
		Models: []string{"m1", "m2"},
	})
	require.Error(t, err)
}

func TestStaticGetEndpointsDedupesAndGroupsModels(t *testing.T) {
	s, err := NewStatic(log.NewNopLogger(), 100, StaticConfig{
		URLs:   []string{"http://a", "http://a", "http://b"},
		Models: []string{"m1", "m2", "m1"},
	})
	require.NoError(t, err)
	defer s.Close()

	eps := s.GetEndpoints()
	require.Len(t, eps, 2)

	seen := map[string][]string{}
	for _, ep := range eps {
		seen[ep.URL] = ep.ModelNames
		assert.EqualValues(t, 100, ep.AddedTimestamp)
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, seen["http://a"])
	assert.ElementsMatch(t, []string{"m1"}, seen["http://b"])
}

func TestStaticHealthCheckHidesFailingPairs(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	s, err := NewStatic(log.NewNopLogger(), 0, StaticConfig{
		URLs:              []string{good.URL, bad.URL},
		Models:             []string{"m1", "m1"},
		ModelTypes:         []ModelType{ModelTypeChat, ModelTypeChat},
		EnableHealthCheck:  true,
		Client:             good.Client(),
	})
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		eps := s.GetEndpoints()
		for _, ep := range eps {
			if ep.URL == bad.URL {
				return false
			}
		}
		for _, ep := range eps {
			if ep.URL == good.URL {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
