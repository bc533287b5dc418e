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
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// statusRecorder captures the status code a handler wrote, for logging,
// since http.ResponseWriter doesn't expose it once written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// recoverMiddleware logs and converts a panicking handler into a 500
// instead of taking down the serving goroutine, and logs each request
// at the end of its lifecycle. Modeled on the teacher's instrumented
// handler wrapping, trimmed to the logging concern: metrics export is
// out of scope here (see SPEC_FULL.md).
func recoverMiddleware(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if err := recover(); err != nil {
				_ = level.Error(logger).Log(
					"msg", "panic while handling request",
					"path", r.URL.Path,
					"err", err,
				)
				rec.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = level.Debug(logger).Log(
				"msg", "handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}
