// Package api exposes the quota authority over HTTP for the options and
// popup surfaces, plus the websocket channel page contexts connect to.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/channel"
	"github.com/orvi2014/classcatch/internal/quota"
)

// Router wires the HTTP surface over the authority and the channel hub.
type Router struct {
	mux       *http.ServeMux
	authority *quota.Authority
	hub       *channel.Hub

	// defaultPermalink backs verify requests that omit the permalink.
	defaultPermalink string
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultPermalink sets the product permalink used when a verify
// request carries only the license key.
func WithDefaultPermalink(permalink string) Option {
	return func(rt *Router) { rt.defaultPermalink = permalink }
}

// NewRouter builds the full route table.
func NewRouter(authority *quota.Authority, hub *channel.Hub, opts ...Option) *Router {
	rt := &Router{
		mux:       http.NewServeMux(),
		authority: authority,
		hub:       hub,
	}
	for _, opt := range opts {
		opt(rt)
	}

	rt.mux.HandleFunc("/api/health", rt.handleHealth)
	rt.mux.HandleFunc("/api/status", rt.handleStatus)
	rt.mux.HandleFunc("/api/quota", rt.handleQuota)
	rt.mux.HandleFunc("/api/license/verify", rt.handleVerifyLicense)
	rt.mux.HandleFunc("/api/quota/reset", rt.handleResetQuota)
	rt.mux.HandleFunc("/api/settings", rt.handleSettings)
	rt.mux.HandleFunc("/api/convert", rt.handleConvert)
	rt.mux.HandleFunc("/ws", hub.HandleWebSocket)
	rt.mux.Handle("/metrics", promhttp.Handler())

	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response body")
	}
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(out)
}
