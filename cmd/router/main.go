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

// Command router is the thin entrypoint that wires the model-aware LLM
// inference router together: it parses flags, constructs the chosen
// service-discovery and routing-policy variants, and runs the scrape
// worker, the discovery watcher, and the HTTP server side by side with
// coordinated shutdown.
//
// The dynamic, file-watching configuration reloader and the broader
// external CLI that normally front this core are intentionally not
// reproduced here (see spec.md's Non-goals); this binary accepts its
// full configuration surface as static flags instead.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/oklog/run"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"llmrouter/internal/version"
	"llmrouter/pkg/discovery"
	"llmrouter/pkg/enginestats"
	"llmrouter/pkg/proxy"
	"llmrouter/pkg/requeststats"
	"llmrouter/pkg/routing"
)

func main() {
	a := kingpin.New("router", "Model-aware LLM inference router")
	a.HelpFlag.Short('h')

	logLevel := a.Flag("log.level", "One of 'debug', 'info', 'warn', 'error'.").
		Default("info").Enum("debug", "info", "warn", "error")

	listenAddr := a.Flag("listen-address", "Address to serve the HTTP surface on.").Default(":8000").String()

	discoveryMode := a.Flag("discovery.mode", "Service-discovery variant: 'static' or 'k8s'.").
		Default("static").Enum("static", "k8s")

	staticURLs := a.Flag("discovery.static.url", "Backend base URL (repeatable, parallel to --discovery.static.model).").Strings()
	staticModels := a.Flag("discovery.static.model", "Model served at the corresponding --discovery.static.url.").Strings()
	staticHealthCheck := a.Flag("discovery.static.health-check", "Enable the periodic health-check loop.").Default("true").Bool()
	modelAliases := a.Flag("discovery.static.alias", "Client-facing model name to backend model name, as alias=target (repeatable).").StringMap()

	k8sNamespace := a.Flag("discovery.k8s.namespace", "Namespace to watch for engine pods.").Default("default").String()
	k8sPort := a.Flag("discovery.k8s.port", "Port each engine pod serves on.").Default("8000").Int()
	k8sLabelSelector := a.Flag("discovery.k8s.label-selector", "Label selector identifying engine pods.").Default("app=vllm").String()
	kubeconfigDefault := ""
	if home := homedir.HomeDir(); home != "" {
		kubeconfigDefault = filepath.Join(home, ".kube", "config")
	}
	kubeconfig := a.Flag("discovery.k8s.kubeconfig", "Path to a kubeconfig file; empty uses in-cluster config.").
		Default(kubeconfigDefault).String()
	apiserverURL := a.Flag("discovery.k8s.apiserver", "Kubernetes API server URL override.").Default("").String()

	routingPolicy := a.Flag("routing.policy", "Routing policy: 'round-robin' or 'session'.").
		Default("round-robin").Enum("round-robin", "session")
	sessionHeader := a.Flag("routing.session.header", "Header carrying the session id for session-affinity routing.").
		Default("X-Session-Id").String()

	scrapeInterval := a.Flag("engine-stats.interval", "Engine-stats scrape interval.").Default("15s").Duration()
	requestWindow := a.Flag("request-stats.window", "Request-stats sliding window size.").Default("60s").Duration()

	apiKey := a.Flag("vllm-api-key", "Bearer token sent to backends' /v1/models and /metrics.").
		Envar("VLLM_API_KEY").Default("").String()
	debugHeaders := a.Flag("debug-headers", "Add X-Router-Backend to proxied responses.").Default("false").Bool()

	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "parsing flags: %s\n", err)
		a.Usage(os.Args[1:])
		os.Exit(2)
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	switch strings.ToLower(*logLevel) {
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	registry, err := buildRegistry(logger, *discoveryMode, discoveryFlags{
		staticURLs:        *staticURLs,
		staticModels:      *staticModels,
		staticHealthCheck: *staticHealthCheck,
		k8sNamespace:      *k8sNamespace,
		k8sPort:           *k8sPort,
		k8sLabelSelector:  *k8sLabelSelector,
		kubeconfig:        *kubeconfig,
		apiserverURL:      *apiserverURL,
		apiKey:            *apiKey,
	})
	if err != nil {
		_ = level.Error(logger).Log("msg", "building service-discovery registry failed", "err", err)
		os.Exit(1)
	}

	scraper := enginestats.NewScraper(logger, registry, *scrapeInterval, *apiKey)
	monitor := requeststats.NewMonitor(logger, *requestWindow)

	var policy routing.Policy
	if *routingPolicy == "session" {
		policy = routing.NewSession(*sessionHeader)
	} else {
		policy = routing.NewRoundRobin()
	}

	ctx := &proxy.Context{
		Logger:       logger,
		Registry:     registry,
		Scraper:      scraper,
		Monitor:      monitor,
		Policy:       policy,
		HTTPClient:   cleanhttp.DefaultPooledClient(),
		Aliases:      *modelAliases,
		DebugHeaders: *debugHeaders,
		Version:      version.Version,
	}

	server := &http.Server{Addr: *listenAddr, Handler: ctx.NewMux()}

	var g run.Group
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case <-term:
				_ = level.Info(logger).Log("msg", "received termination signal, shutting down")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}
	{
		g.Add(func() error {
			_ = level.Info(logger).Log("msg", "starting HTTP server", "addr", *listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			_ = server.Close()
		})
	}
	{
		g.Add(func() error {
			<-make(chan struct{}) // scraper and registry run their own goroutines; block until stopped
			return nil
		}, func(error) {
			scraper.Close()
			registry.Close()
		})
	}

	if err := g.Run(); err != nil {
		_ = level.Error(logger).Log("msg", "router exited with error", "err", err)
		os.Exit(1)
	}
}

type discoveryFlags struct {
	staticURLs        []string
	staticModels      []string
	staticHealthCheck bool

	k8sNamespace     string
	k8sPort          int
	k8sLabelSelector string
	kubeconfig       string
	apiserverURL     string

	apiKey string
}

func buildRegistry(logger log.Logger, mode string, f discoveryFlags) (discovery.Registry, error) {
	if mode == "k8s" {
		restCfg, err := clientcmd.BuildConfigFromFlags(f.apiserverURL, f.kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("building kubeconfig: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("building kubernetes client: %w", err)
		}
		return discovery.NewK8s(logger, clientset, discovery.K8sConfig{
			Namespace:     f.k8sNamespace,
			Port:          f.k8sPort,
			LabelSelector: f.k8sLabelSelector,
			APIKey:        f.apiKey,
		}), nil
	}

	return discovery.NewStatic(logger, time.Now().Unix(), discovery.StaticConfig{
		URLs:              f.staticURLs,
		Models:            f.staticModels,
		EnableHealthCheck: f.staticHealthCheck,
	})
}
