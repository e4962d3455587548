// Copyright 2025 The keytrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package env contains the configuration sections and initialization code shared by keytrust
// applications.
package env

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/config"
)

const (
	// ShutdownGraceInterval is the time applications wait after issuing a
	// clean shutdown signal, before forcefully tearing down the application.
	ShutdownGraceInterval = 5 * time.Second
	// HandlerTimeout is the time after which the http handler gives up on a request and
	// returns an error instead.
	HandlerTimeout = time.Minute
)

var _ config.Config = (*General)(nil)

// General identifies the account and device the keys are managed for.
type General struct {
	config.NoDefaulter
	// UserID is the Matrix user ID of the own account.
	UserID matrix.UserID `toml:"user_id,omitempty"`
	// DeviceID is the ID of the own device.
	DeviceID matrix.DeviceID `toml:"device_id,omitempty"`
}

func (cfg *General) Validate() error {
	if cfg.UserID == "" {
		return serrors.New("no user_id specified")
	}
	if !strings.HasPrefix(string(cfg.UserID), "@") || !strings.Contains(string(cfg.UserID), ":") {
		return serrors.New("malformed user_id", "user_id", cfg.UserID)
	}
	if cfg.DeviceID == "" {
		return serrors.New("no device_id specified")
	}
	return nil
}

func (cfg *General) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, generalSample)
}

func (cfg *General) ConfigName() string {
	return "general"
}

var _ config.Config = (*Metrics)(nil)

type Metrics struct {
	config.NoDefaulter
	config.NoValidator
	// Prometheus contains the address to export prometheus metrics on. If
	// not set, metrics are not exported.
	Prometheus string `toml:"prometheus,omitempty"`
}

func (cfg *Metrics) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, metricsSample)
}

func (cfg *Metrics) ConfigName() string {
	return "metrics"
}

// ServePrometheus serves the metrics of g under /metrics until ctx is done.
func (cfg *Metrics) ServePrometheus(ctx context.Context, g prometheus.Gatherer) error {
	if cfg.Prometheus == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{Timeout: HandlerTimeout}))
	log.Info("Exporting prometheus metrics", "addr", cfg.Prometheus)
	return Serve(ctx, &http.Server{Addr: cfg.Prometheus, Handler: mux})
}

var _ config.Config = (*API)(nil)

// API configures the management API.
type API struct {
	config.NoDefaulter
	config.NoValidator
	// Addr is the address the management API listens on. If not set, the API is not served.
	Addr string `toml:"addr,omitempty"`
	// AllowedOrigins are the CORS origins of the management API. If empty, all origins are
	// allowed.
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

func (cfg *API) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, apiSample)
}

func (cfg *API) ConfigName() string {
	return "api"
}

// Serve runs server until ctx is done. The server is closed after the grace interval.
func Serve(ctx context.Context, server *http.Server) error {
	go func() {
		defer log.HandlePanic()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGraceInterval)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return serrors.Wrap("serving http", err, "addr", server.Addr)
	}
	return nil
}
