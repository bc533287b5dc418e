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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

const watchReconnectBackoff = 500 * time.Millisecond

// K8sConfig parameterizes the cluster-watched registry variant (§4.A).
type K8sConfig struct {
	Namespace     string
	Port          int
	LabelSelector string
	// APIKey, if set, is sent as "Authorization: Bearer <key>" when
	// calling a pod's /v1/models during discovery (§6).
	APIKey string
	Client *http.Client
}

// K8s is the cluster-watched EndpointRegistry variant: it watches a pod
// list filtered by label selector and derives endpoints from ready,
// model-serving pods.
type K8s struct {
	logger    log.Logger
	clientset kubernetes.Interface
	cfg       K8sConfig
	http      *http.Client

	mu        sync.RWMutex
	endpoints map[string]EndpointInfo // keyed by URL
	urlOfPod  map[string]string       // pod name -> URL, for removal once the pod's IP is gone
	healthy   bool

	stop chan struct{}
	done chan struct{}
}

// NewK8s starts the watcher immediately and returns once the watch loop
// goroutine has been launched.
func NewK8s(logger log.Logger, clientset kubernetes.Interface, cfg K8sConfig) *K8s {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	k := &K8s{
		logger:    log.With(logger, "component", "discovery.k8s", "namespace", cfg.Namespace),
		clientset: clientset,
		cfg:       cfg,
		http:      httpClient,
		endpoints: make(map[string]EndpointInfo),
		urlOfPod:  make(map[string]string),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go k.run()
	return k
}

func (k *K8s) GetEndpoints() []EndpointInfo {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]EndpointInfo, 0, len(k.endpoints))
	for _, ep := range k.endpoints {
		out = append(out, ep)
	}
	return out
}

func (k *K8s) GetHealth() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.healthy
}

func (k *K8s) Close() {
	select {
	case <-k.stop:
	default:
		close(k.stop)
	}
	<-k.done
}

func (k *K8s) run() {
	defer close(k.done)

	for {
		select {
		case <-k.stop:
			return
		default:
		}

		if err := k.watchOnce(); err != nil {
			k.setHealthy(false)
			_ = level.Warn(k.logger).Log("msg", "watch stream error, reconnecting", "err", err)
		}

		select {
		case <-k.stop:
			return
		case <-time.After(watchReconnectBackoff):
		}
	}
}

func (k *K8s) watchOnce() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := k.clientset.CoreV1().Pods(k.cfg.Namespace).Watch(ctx, metaListOptions(k.cfg.LabelSelector))
	if err != nil {
		return fmt.Errorf("starting pod watch: %w", err)
	}
	defer w.Stop()

	k.setHealthy(true)

	for {
		select {
		case <-k.stop:
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return fmt.Errorf("watch channel closed")
			}
			k.handleEvent(ev)
		}
	}
}

func (k *K8s) handleEvent(ev watch.Event) {
	pod, ok := ev.Object.(*corev1.Pod)
	if !ok {
		return
	}

	switch ev.Type {
	case watch.Added, watch.Modified:
		ep, ready := k.endpointFor(pod)
		if ready {
			k.mu.Lock()
			k.endpoints[ep.URL] = ep
			k.urlOfPod[pod.Name] = ep.URL
			k.mu.Unlock()
		} else {
			k.removePod(pod)
		}
	case watch.Deleted:
		k.removePod(pod)
	}
}

// removePod deletes the endpoint a pod last resolved to. It keys off
// the URL recorded for the pod's name at add-time rather than
// recomputing the URL from the pod's current IP, so a pod that has
// already lost its IP (e.g. a MODIFIED-to-not-ready event racing with
// deletion) is still removed instead of leaving a stale endpoint
// behind.
func (k *K8s) removePod(pod *corev1.Pod) {
	k.mu.Lock()
	defer k.mu.Unlock()

	url, ok := k.urlOfPod[pod.Name]
	if !ok {
		return
	}
	delete(k.endpoints, url)
	delete(k.urlOfPod, pod.Name)
}

// endpointFor resolves a single pod into an EndpointInfo. It returns
// ready=false for pods that are not yet ready, have no IP, or whose
// /v1/models call failed or returned no models — such pods are treated
// as not-ready rather than surfaced as unhealthy endpoints.
func (k *K8s) endpointFor(pod *corev1.Pod) (EndpointInfo, bool) {
	if !podReady(pod) || pod.Status.PodIP == "" {
		return EndpointInfo{}, false
	}

	url := fmt.Sprintf("http://%s:%d", pod.Status.PodIP, k.cfg.Port)
	models, modelInfo, err := k.fetchModels(url)
	if err != nil || len(models) == 0 {
		if err != nil {
			_ = level.Warn(k.logger).Log("msg", "fetching /v1/models failed, treating pod as not ready", "pod", pod.Name, "err", err)
		}
		return EndpointInfo{}, false
	}

	return EndpointInfo{
		URL:            url,
		ModelNames:     models,
		ModelLabel:     pod.Labels["model"],
		AddedTimestamp: time.Now().Unix(),
		Healthy:        true,
		ModelInfo:      modelInfo,
	}, true
}

func podReady(pod *corev1.Pod) bool {
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

type modelListResponse struct {
	Data []struct {
		ID     string  `json:"id"`
		Root   *string `json:"root"`
		Parent *string `json:"parent"`
	} `json:"data"`
}

func (k *K8s) fetchModels(baseURL string) ([]string, map[string]ModelInfo, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return nil, nil, err
	}
	if k.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+k.cfg.APIKey)
	}

	resp, err := k.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("/v1/models returned status %d", resp.StatusCode)
	}

	var parsed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decoding /v1/models response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	info := make(map[string]ModelInfo, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
		info[m.ID] = ModelInfo{
			ID:        m.ID,
			Parent:    m.Parent,
			IsAdapter: m.Parent != nil,
		}
	}
	return models, info, nil
}
