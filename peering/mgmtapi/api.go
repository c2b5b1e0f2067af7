// Copyright 2025 The peermgr authors
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

// Package mgmtapi exposes the peering operations over HTTP. Errors are
// reported as application/problem+json bodies; transient conditions map
// to 503 so callers know to retry.
package mgmtapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/configgen"
	"github.com/peermgr/peermgr/peering/reconciler"
	"github.com/peermgr/peermgr/peering/vault"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/log"
	"github.com/peermgr/peermgr/private/storage"
)

// Server serves the management API.
type Server struct {
	db             storage.DB
	reconciler     *reconciler.Reconciler
	generator      *configgen.Generator
	token          string
	allowedOrigins []string
}

// New creates a management API server. Requests must carry the token.
func New(db storage.DB, r *reconciler.Reconciler, g *configgen.Generator,
	token string, allowedOrigins []string) *Server {

	return &Server{
		db:             db,
		reconciler:     r,
		generator:      g,
		token:          token,
		allowedOrigins: allowedOrigins,
	}
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/v1", func(r chi.Router) {
		r.Use(s.authorize)
		r.Post("/autonomous-systems/{asn}/synchronize", s.synchronizeAS)
		r.Post("/autonomous-systems/{asn}/find-potential-sessions",
			s.findPotentialSessions)
		r.Get("/autonomous-systems/{asn}/common-exchanges", s.commonExchanges)
		r.Post("/groups/{id}/poll", s.pollGroup)
		r.Post("/exchanges/{id}/synchronize", s.synchronizeExchange)
		r.Post("/exchanges/{id}/poll", s.pollExchange)
		r.Post("/exchanges/{id}/import-sessions", s.importSessions)
		r.Get("/exchanges/{id}/available-peers", s.availablePeers)
		r.Get("/exchanges/{id}/configuration", s.exchangeConfiguration)
		r.Get("/exchanges/{id}/deploy", s.deployExchangeDryRun)
		r.Post("/exchanges/{id}/deploy", s.deployExchangeCommit)
		r.Get("/routers/{id}/configuration", s.routerConfiguration)
		r.Get("/routers/{id}/deploy", s.deployRouterDryRun)
		r.Post("/routers/{id}/deploy", s.deployRouterCommit)
		r.Post("/routers/{id}/test-connection", s.testConnection)
		r.Post("/sessions/direct/{id}/clear", s.clearDirectSession)
		r.Post("/sessions/exchange/{id}/clear", s.clearExchangeSession)
		r.Post("/sessions/direct/{id}/encrypt-password", s.encryptDirectPassword)
		r.Post("/sessions/exchange/{id}/encrypt-password",
			s.encryptExchangePassword)
	})
	return router
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized",
				"A valid bearer token is required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) synchronizeAS(w http.ResponseWriter, r *http.Request) {
	asn, ok := asnParam(w, r)
	if !ok {
		return
	}
	as, err := s.reconciler.SynchronizeWithPeeringDB(r.Context(), asn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asn":               as.ASN,
		"name":              as.Name,
		"irr_as_set":        as.IRRASSet,
		"ipv4_max_prefixes": as.IPv4MaxPrefixes,
		"ipv6_max_prefixes": as.IPv6MaxPrefixes,
		"last_synchronized": as.LastSynchronized,
	})
}

func (s *Server) findPotentialSessions(w http.ResponseWriter, r *http.Request) {
	asn, ok := asnParam(w, r)
	if !ok {
		return
	}
	created, err := s.reconciler.FindPotentialSessions(r.Context(), asn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": len(created)})
}

func (s *Server) commonExchanges(w http.ResponseWriter, r *http.Request) {
	asn, ok := asnParam(w, r)
	if !ok {
		return
	}
	common, err := s.reconciler.CommonExchanges(r.Context(), asn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type exchange struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	out := make([]exchange, 0, len(common))
	for _, ix := range common {
		out = append(out, exchange{ID: ix.ID, Name: ix.Name, Slug: ix.Slug})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) synchronizeExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ix, err := s.reconciler.SynchronizeExchange(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ipv4_prefix": ix.IPv4Prefix,
		"ipv6_prefix": ix.IPv6Prefix,
	})
}

func (s *Server) pollGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.PollGroup(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "polled"})
}

func (s *Server) pollExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.PollExchange(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "polled"})
}

func (s *Server) importSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	report, err := s.reconciler.ImportFromRouter(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"autonomous_systems": report.AutonomousSystems,
		"sessions":           report.Sessions,
		"ignored":            report.Ignored,
		"ignored_asns":       report.IgnoredASNs(),
	})
}

func (s *Server) availablePeers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	records, err := s.reconciler.AvailablePeers(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type peer struct {
		ASN           bgp.ASN `json:"asn"`
		Name          string  `json:"name"`
		IPAddr4       string  `json:"ipaddr4,omitempty"`
		IPAddr6       string  `json:"ipaddr6,omitempty"`
		IsRouteServer bool    `json:"is_route_server"`
	}
	out := make([]peer, 0, len(records))
	for _, record := range records {
		out = append(out, peer{
			ASN:           record.NetworkIXLAN.ASN,
			Name:          record.Network.Name,
			IPAddr4:       record.NetworkIXLAN.IPAddr4,
			IPAddr6:       record.NetworkIXLAN.IPAddr6,
			IsRouteServer: record.NetworkIXLAN.IsRSPeer,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) routerConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	config, err := s.generator.RouterConfiguration(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configuration": config})
}

func (s *Server) exchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	config, err := s.generator.ExchangeConfiguration(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configuration": config})
}

func (s *Server) deployRouterDryRun(w http.ResponseWriter, r *http.Request) {
	s.deployRouter(w, r, false)
}

func (s *Server) deployRouterCommit(w http.ResponseWriter, r *http.Request) {
	s.deployRouter(w, r, true)
}

func (s *Server) deployRouter(w http.ResponseWriter, r *http.Request, commit bool) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := s.generator.DeployRouter(r.Context(), id, commit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": result.Changed,
		"changes": result.Diff,
	})
}

func (s *Server) deployExchangeDryRun(w http.ResponseWriter, r *http.Request) {
	s.deployExchange(w, r, false)
}

func (s *Server) deployExchangeCommit(w http.ResponseWriter, r *http.Request) {
	s.deployExchange(w, r, true)
}

func (s *Server) deployExchange(w http.ResponseWriter, r *http.Request, commit bool) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := s.generator.DeployExchange(r.Context(), id, commit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": result.Changed,
		"changes": result.Diff,
	})
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.TestRouterConnection(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reachable"})
}

func (s *Server) clearDirectSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	out, err := s.reconciler.ClearDirectSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": out})
}

func (s *Server) clearExchangeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	out, err := s.reconciler.ClearExchangeSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": out})
}

func (s *Server) encryptDirectPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	session, err := s.db.DirectSession(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if session.RouterID == 0 {
		writeError(w, r, peering.ErrNoRouterConfigured)
		return
	}
	router, err := s.db.Router(ctx, session.RouterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := vault.EncryptCredentials(router.Platform, &session.Credentials); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.db.UpdateDirectSession(ctx, session); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"encrypted_password": session.EncryptedPassword,
	})
}

func (s *Server) encryptExchangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	session, err := s.db.ExchangeSession(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ix, err := s.db.Exchange(ctx, session.ExchangeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ix.HasRouter() {
		writeError(w, r, peering.ErrNoRouterConfigured)
		return
	}
	router, err := s.db.Router(ctx, ix.RouterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := vault.EncryptCredentials(router.Platform, &session.Credentials); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.db.UpdateExchangeSession(ctx, session); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"encrypted_password": session.EncryptedPassword,
	})
}

func asnParam(w http.ResponseWriter, r *http.Request) (bgp.ASN, bool) {
	asn, err := bgp.ParseASN(chi.URLParam(r, "asn"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ASN", err.Error())
		return 0, false
	}
	return asn, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid identifier",
			"The identifier must be a positive integer.")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Problem is an application/problem+json response body.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, peering.ErrPollFailed):
		w.Header().Set("Retry-After", "60")
		writeProblem(w, http.StatusServiceUnavailable, "Poll failed",
			"Cannot update peering session states.")
	case peering.Transient(err):
		w.Header().Set("Retry-After", "60")
		writeProblem(w, http.StatusServiceUnavailable, "Temporarily unavailable",
			err.Error())
	case errors.Is(err, peering.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, peering.ErrNoRouterConfigured),
		errors.Is(err, peering.ErrNoTemplateAssigned),
		errors.Is(err, peering.ErrUnsupportedPlatform),
		errors.Is(err, peering.ErrAlreadyEncrypted),
		errors.Is(err, peering.ErrRender):
		writeProblem(w, http.StatusConflict, "Conflicting state", err.Error())
	default:
		log.FromCtx(r.Context()).Error("Request failed",
			"path", r.URL.Path, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Internal error",
			"The request could not be processed.")
	}
}
