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

// Package discovery maintains the authoritative {engine_id -> EndpointInfo}
// map, either from a static configuration or from a watched Kubernetes
// pod list, and exposes point-in-time snapshots to the rest of the
// router.
package discovery

// ModelType distinguishes the request path used to health-check a model.
type ModelType string

const (
	ModelTypeChat       ModelType = "chat"
	ModelTypeCompletion ModelType = "completion"
	ModelTypeEmbeddings ModelType = "embeddings"
	ModelTypeRerank     ModelType = "rerank"
	ModelTypeScore      ModelType = "score"
)

// ModelInfo describes one model served by an endpoint, including its
// adapter relationship if any.
type ModelInfo struct {
	ID        string
	Parent    *string // nil for base models, non-nil adapter parent otherwise
	IsAdapter bool
}

// EndpointInfo describes one serving backend.
type EndpointInfo struct {
	URL             string
	ModelNames      []string
	ModelLabel      string
	AddedTimestamp  int64 // seconds since epoch
	Healthy         bool
	ModelInfo       map[string]ModelInfo // keyed by model id, optional
}

// Registry is the contract every service-discovery variant implements
// (§4.A). Implementations must return snapshots that are safe to read
// concurrently with further mutation; callers may not mutate the result.
type Registry interface {
	// GetEndpoints returns a consistent, point-in-time snapshot.
	GetEndpoints() []EndpointInfo
	// GetHealth reports whether the background worker backing this
	// registry is still alive.
	GetHealth() bool
	// Close terminates the background worker and releases resources.
	Close()
}
