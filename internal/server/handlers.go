package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/directory"
	"github.com/sells-group/manuid/internal/ingest"
	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/resilience"
	"github.com/sells-group/manuid/internal/store"
)

const (
	minQueryLen  = 2
	maxQueryLen  = 200
	maxNotesLen  = 1000
	maxListLimit = 100
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProductTypes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProductTypeFilter{
		Query:        strings.TrimSpace(q.Get("q")),
		Pharmacopeia: strings.TrimSpace(q.Get("pharmacopeia")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		filter.Limit = limit
	}

	types, err := s.directory.ListProductTypes(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, err, "list product types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_types": types})
}

type searchVendorsRequest struct {
	Query          string   `json:"query"`
	Country        string   `json:"country,omitempty"`
	CompanyType    string   `json:"company_type,omitempty"`
	Status         string   `json:"status,omitempty"`
	Role           string   `json:"role,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	Regions        []string `json:"regions,omitempty"`
	MinConfidence  float64  `json:"min_confidence,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

func (s *Server) handleSearchVendors(w http.ResponseWriter, r *http.Request) {
	var req searchVendorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if len(req.Query) < minQueryLen || len(req.Query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query must be between 2 and 200 characters")
		return
	}
	if req.CompanyType != "" && !model.ValidCompanyType(req.CompanyType) {
		writeError(w, http.StatusBadRequest, "company_type must be MANUFACTURER, DISTRIBUTOR, or BOTH")
		return
	}
	if req.Status != "" && !model.ValidCompanyStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "status must be ACTIVE, LIMITED, or INACTIVE")
		return
	}
	if req.Role != "" && !model.ValidLinkRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be PRIMARY_MANUFACTURER, AUTHORIZED_DISTRIBUTOR, or RESELLER")
		return
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		writeError(w, http.StatusBadRequest, "min_confidence must be between 0 and 1")
		return
	}
	if req.Limit < 0 || req.Limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	result, err := s.directory.SearchVendors(r.Context(), directory.SearchRequest{
		Query:          req.Query,
		Country:        req.Country,
		CompanyType:    model.CompanyType(req.CompanyType),
		Status:         model.CompanyStatus(req.Status),
		Role:           model.LinkRole(req.Role),
		Certifications: req.Certifications,
		Regions:        req.Regions,
		MinConfidence:  req.MinConfidence,
		Limit:          req.Limit,
	})
	if err != nil {
		s.internalError(w, r, err, "search vendors")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ingestURLRequest struct {
	URL         string `json:"url"`
	ProductType string `json:"product_type"`
	Role        string `json:"role,omitempty"`
	SourceName  string `json:"source_name,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	req.ProductType = strings.TrimSpace(req.ProductType)
	if len(req.ProductType) < minQueryLen || len(req.ProductType) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "product_type must be between 2 and 200 characters")
		return
	}
	if req.Role != "" && !model.ValidLinkRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be PRIMARY_MANUFACTURER, AUTHORIZED_DISTRIBUTOR, or RESELLER")
		return
	}

	report, err := s.pipeline.Run(r.Context(), ingest.Request{
		URL:         req.URL,
		ProductType: req.ProductType,
		Role:        model.LinkRole(req.Role),
		SourceName:  strings.TrimSpace(req.SourceName),
		DryRun:      req.DryRun,
	})
	if err != nil {
		// Policy rejections (allowlist, SSRF, bad content type) are the
		// caller's fault, not ours.
		if resilience.IsPermanent(err) {
			writeError(w, http.StatusUnprocessableEntity, eris.Cause(err).Error())
			return
		}
		s.internalError(w, r, err, "ingest url")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := vendorID(w, r)
	if !ok {
		return
	}

	detail, err := s.directory.GetVendor(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vendor not found")
			return
		}
		s.internalError(w, r, err, "get vendor")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type verifyVendorRequest struct {
	State      string   `json:"state"`
	Confidence *float64 `json:"confidence,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

func (s *Server) handleVerifyVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := vendorID(w, r)
	if !ok {
		return
	}

	var req verifyVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !model.ValidVerificationState(req.State) {
		writeError(w, http.StatusBadRequest, "state must be UNVERIFIED, AUTO_VERIFIED, or HUMAN_VERIFIED")
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		writeError(w, http.StatusBadRequest, "confidence must be between 0 and 1")
		return
	}
	if len(req.Notes) > maxNotesLen {
		writeError(w, http.StatusBadRequest, "notes must be at most 1000 characters")
		return
	}

	company, err := s.directory.VerifyVendor(r.Context(), id, directory.VerifyRequest{
		State:      model.VerificationState(req.State),
		Confidence: req.Confidence,
		Notes:      req.Notes,
	})
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vendor not found")
			return
		}
		s.internalError(w, r, err, "verify vendor")
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleSourceCatalog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	records, err := s.directory.SourceCatalog(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err, "list source catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": records})
}

func vendorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "vendorID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "vendor id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	zap.L().Error("request failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("op", op),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
