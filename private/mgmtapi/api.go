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

// Package mgmtapi implements the http management API. It exposes the stored trust levels, the
// current backup version and the outstanding key requests.
package mgmtapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/private/env"
)

// Store is the part of the key store the API reads.
type Store interface {
	DeviceKeys(ctx context.Context,
		user matrix.UserID) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error)
	CrossSigningKeys(ctx context.Context,
		user matrix.UserID) (map[matrix.KeyUsage]matrix.StoredCrossSigningKey, error)
	SecretKeyRequests(ctx context.Context) ([]matrix.StoredSecretKeyRequest, error)
	RoomKeyRequests(ctx context.Context) ([]matrix.StoredRoomKeyRequest, error)
}

// Backup provides the current trusted backup version.
type Backup interface {
	CurrentVersion() *matrix.BackupVersion
}

// Server implements the management API.
type Server struct {
	Store Store
	// Backup is optional. Without it, no backup version is reported.
	Backup Backup
	// Gatherer is optional. If set, its metrics are served under /metrics.
	Gatherer prometheus.Gatherer
	// AllowedOrigins are the CORS origins. If empty, all origins are allowed.
	AllowedOrigins []string
}

// Handler returns the router of the API.
func Handler(s *Server) http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/trust/{user}/devices", s.GetDevices)
	r.Get("/trust/{user}/cross-signing", s.GetCrossSigningKeys)
	r.Get("/backup/version", s.GetBackupVersion)
	r.Get("/requests/secrets", s.GetSecretRequests)
	r.Get("/requests/roomkeys", s.GetRoomKeyRequests)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer,
			promhttp.HandlerOpts{Timeout: env.HandlerTimeout}))
	}
	return r
}

// GetDevices lists the devices of a user.
func (s *Server) GetDevices(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	devices, err := s.Store.DeviceKeys(r.Context(), user)
	if err != nil {
		internalError(w, "error loading devices", err)
		return
	}
	writeJSON(w, NewDevicesResponse(user, devices))
}

// GetCrossSigningKeys lists the cross-signing keys of a user.
func (s *Server) GetCrossSigningKeys(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	keys, err := s.Store.CrossSigningKeys(r.Context(), user)
	if err != nil {
		internalError(w, "error loading cross-signing keys", err)
		return
	}
	writeJSON(w, NewCrossSigningResponse(user, keys))
}

// GetBackupVersion reports the current trusted backup version.
func (s *Server) GetBackupVersion(w http.ResponseWriter, r *http.Request) {
	var v *matrix.BackupVersion
	if s.Backup != nil {
		v = s.Backup.CurrentVersion()
	}
	if v == nil {
		ErrorResponse(w, Problem{
			Status: http.StatusNotFound,
			Title:  "no trusted backup version",
			Type:   NotFound,
		})
		return
	}
	writeJSON(w, BackupVersionResponse{
		Version:   v.Version,
		Algorithm: v.Algorithm,
		PublicKey: v.AuthData.PublicKey,
		Count:     v.Count,
	})
}

// GetSecretRequests lists the outgoing secret requests.
func (s *Server) GetSecretRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.Store.SecretKeyRequests(r.Context())
	if err != nil {
		internalError(w, "error loading secret requests", err)
		return
	}
	writeJSON(w, NewSecretRequests(requests))
}

// GetRoomKeyRequests lists the outgoing room key requests.
func (s *Server) GetRoomKeyRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.Store.RoomKeyRequests(r.Context())
	if err != nil {
		internalError(w, "error loading room key requests", err)
		return
	}
	writeJSON(w, NewRoomKeyRequests(requests))
}

func userParam(w http.ResponseWriter, r *http.Request) (matrix.UserID, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "user"))
	if err != nil || !strings.HasPrefix(raw, "@") || !strings.Contains(raw, ":") {
		ErrorResponse(w, Problem{
			Detail: "user must be a Matrix user ID",
			Status: http.StatusBadRequest,
			Title:  "malformed user",
			Type:   BadRequest,
		})
		return "", false
	}
	return matrix.UserID(raw), true
}

func internalError(w http.ResponseWriter, title string, err error) {
	ErrorResponse(w, Problem{
		Detail: err.Error(),
		Status: http.StatusInternalServerError,
		Title:  title,
		Type:   InternalError,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		ErrorResponse(w, Problem{
			Detail: err.Error(),
			Status: http.StatusInternalServerError,
			Title:  "unable to marshal response",
			Type:   InternalError,
		})
	}
}

// ErrorResponse writes a problem response.
func ErrorResponse(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	// no point in catching error here, there is nothing we can do about it anymore.
	_ = enc.Encode(p)
}
