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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleExposition = `# HELP vllm:num_requests_running Number of requests currently running on GPU.
# TYPE vllm:num_requests_running gauge
vllm:num_requests_running{model_name="m1"} 3.0
# HELP vllm:num_requests_waiting Number of requests waiting to be processed.
# TYPE vllm:num_requests_waiting gauge
vllm:num_requests_waiting 1
# HELP vllm:gpu_prefix_cache_hit_rate GPU prefix cache hit rate.
# TYPE vllm:gpu_prefix_cache_hit_rate gauge
vllm:gpu_prefix_cache_hit_rate 0.75
# HELP vllm:gpu_cache_usage_perc GPU KV-cache usage.
# TYPE vllm:gpu_cache_usage_perc gauge
vllm:gpu_cache_usage_perc 0.42
# HELP some_unrelated_metric Irrelevant.
# TYPE some_unrelated_metric counter
some_unrelated_metric 99
`

func TestParseMetrics(t *testing.T) {
	stats := parseMetrics(strings.NewReader(sampleExposition))
	assert.Equal(t, 3.0, stats.NumRunningRequests)
	assert.Equal(t, 1.0, stats.NumQueuingRequests)
	assert.Equal(t, 0.75, stats.GPUPrefixCacheHitRate)
	assert.Equal(t, 0.42, stats.GPUCacheUsagePerc)
}

func TestParseMetricsMissingDefaultsToZero(t *testing.T) {
	stats := parseMetrics(strings.NewReader("# TYPE foo gauge\nfoo 1\n"))
	assert.Equal(t, Stats{}, stats)
}

func TestParseSampleLineIgnoresMalformed(t *testing.T) {
	_, _, ok := parseSampleLine("not a metric line")
	assert.False(t, ok)
}
