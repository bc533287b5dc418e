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
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseMetrics reads the Prometheus text exposition format (version
// 0.0.4) and extracts only the four metrics the router's routing
// policies consume. Everything else — HELP/TYPE lines, labels on the
// samples, histograms, other metric families — is skipped. Missing
// metrics default to zero, per §4.B.
//
// This is intentionally a minimal line parser rather than a dependency
// on a full Prometheus client/exposition library: the router only ever
// needs four scalar gauges, and the teacher's own router services avoid
// pulling in heavyweight parsing for narrow extraction needs.
func parseMetrics(r io.Reader) Stats {
	var out Stats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, ok := parseSampleLine(line)
		if !ok {
			continue
		}

		switch name {
		case metricRunning:
			out.NumRunningRequests = value
		case metricQueuing:
			out.NumQueuingRequests = value
		case metricPrefixHit:
			out.GPUPrefixCacheHitRate = value
		case metricCacheUsage:
			out.GPUCacheUsagePerc = value
		}
	}
	return out
}

// parseSampleLine splits one exposition-format sample line into its
// metric name (labels, if any, stripped) and float value. Trailing
// timestamps, if present, are ignored.
func parseSampleLine(line string) (name string, value float64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", 0, false
	}

	nameAndLabels := fields[0]
	if braceIdx := strings.IndexByte(nameAndLabels, '{'); braceIdx >= 0 {
		nameAndLabels = nameAndLabels[:braceIdx]
	}

	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, false
	}
	return nameAndLabels, v, true
}
