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

// Package enginestats periodically scrapes each known engine's /metrics
// endpoint, parses the Prometheus text exposition format, and exposes a
// snapshot of the four load signals the router's routing policies need.
package enginestats

// Stats is the last-scraped physical load of one engine (§3).
type Stats struct {
	NumRunningRequests     float64
	NumQueuingRequests     float64
	GPUPrefixCacheHitRate  float64
	GPUCacheUsagePerc      float64
}

const (
	metricRunning    = "vllm:num_requests_running"
	metricQueuing    = "vllm:num_requests_waiting"
	metricPrefixHit  = "vllm:gpu_prefix_cache_hit_rate"
	metricCacheUsage = "vllm:gpu_cache_usage_perc"
)
