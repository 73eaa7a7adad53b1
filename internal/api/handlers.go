package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/quota"
	"github.com/orvi2014/classcatch/pkg/tailwind"
)

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /api/health.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"clients": rt.hub.ClientCount(),
	})
}

// handleStatus handles GET /api/status.
func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := rt.authority.GetStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errkind.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleQuota handles GET /api/quota.
func (rt *Router) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := rt.authority.GetQuota(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errkind.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type verifyLicenseRequest struct {
	LicenseKey       string `json:"licenseKey"`
	ProductPermalink string `json:"productPermalink"`
}

// handleVerifyLicense handles POST /api/license/verify.
func (rt *Router) handleVerifyLicense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyLicenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.ProductPermalink == "" {
		req.ProductPermalink = rt.defaultPermalink
	}
	result, err := rt.authority.VerifyLicense(r.Context(), req.LicenseKey, req.ProductPermalink)
	if err != nil {
		if errkind.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, quota.VerifyResult{Success: false, Error: errkind.Message(err)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, quota.VerifyResult{Success: false, Error: errkind.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResetQuota handles POST /api/quota/reset.
func (rt *Router) handleResetQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := rt.authority.ResetQuota(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": errkind.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSettings handles GET and POST /api/settings.
func (rt *Router) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := rt.authority.GetSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errkind.Message(err)})
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPost:
		var update quota.SettingsUpdate
		if err := decodeJSON(r, &update); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
			return
		}
		settings, err := rt.authority.UpdateSettings(r.Context(), update)
		if err != nil {
			if errkind.IsValidation(err) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: errkind.Message(err)})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errkind.Message(err)})
			return
		}
		log.Info().Msg("Settings updated")
		writeJSON(w, http.StatusOK, settings)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type convertRequest struct {
	Styles map[string]string `json:"styles"`
}

type convertResponse struct {
	Classes string `json:"classes"`
}

// handleConvert handles POST /api/convert. It maps computed CSS
// declarations to utility classes the way the inspector tooltip's
// converted mode does.
func (rt *Router) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Classes: tailwind.Convert(req.Styles)})
}
