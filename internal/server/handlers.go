package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/grounding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/policy"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	maxAskBody       = 64 << 10
	maxUploadBytes   = 32 << 20
	maxPolicyText    = 2 << 20
	defaultUsageDays = 30
	maxUsageDays     = 365
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAskBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	who := requesterFrom(r.Context())
	resp, err := s.asker.Ask(r.Context(), who, req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("ask failed", zap.String("tenant_id", who.TenantID()), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !s.config.ExposeSourcesOrDefault() {
		resp.Sources = nil
	}
	if r.URL.Query().Get("format") == "plain" {
		resp.Answer = grounding.StripCitations(resp.Answer)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	upload := models.DocumentUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		Visibility:  r.FormValue("visibility"),
		Tags:        splitTags(r.FormValue("tags")),
	}
	doc, err := s.ingester.Ingest(r.Context(), tenantID, upload)
	switch {
	case errors.Is(err, indexer.ErrInvalidUpload):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, extract.ErrUnsupported):
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, extract.ErrEmpty):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("ingest failed", zap.String("tenant_id", tenantID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	var p models.TenantPolicy
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPolicyText)).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := policy.Validate(p); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Rules == nil {
		p.Rules = []models.PolicyRule{}
	}
	if err := s.store.UpsertTenantPolicy(r.Context(), tenantID, &p); err != nil {
		s.logger.Error("policy upsert failed", zap.String("tenant_id", tenantID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.Info("Tenant policy updated", zap.String("tenant_id", tenantID), zap.Int("rules", len(p.Rules)))
	s.respondJSON(w, http.StatusOK, p)
}

// handleExtractPolicy builds a policy from the plain-text body. With ?apply=true the
// result replaces the tenant policy.
func (s *Server) handleExtractPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPolicyText))
	if err != nil || strings.TrimSpace(string(body)) == "" {
		s.respondError(w, http.StatusBadRequest, "policy text is required")
		return
	}
	p := policy.ExtractFromText(string(body))
	if apply, _ := strconv.ParseBool(r.URL.Query().Get("apply")); apply {
		if err := s.store.UpsertTenantPolicy(r.Context(), tenantID, &p); err != nil {
			s.logger.Error("policy upsert failed", zap.String("tenant_id", tenantID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := requesterFrom(r.Context())
		id := chi.URLParam(r, "id")
		err := s.store.SetAIPaused(r.Context(), who.TenantID(), id, paused, who.ID())
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		if err != nil {
			s.logger.Error("pause toggle failed", zap.String("conversation_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "ai_paused": paused})
	}
}

type usageResponse struct {
	*models.UsageSummary
	Quota any `json:"quota,omitempty"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	days := defaultUsageDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUsageDays {
			s.respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	summary, err := s.store.SummarizeUsage(r.Context(), tenantID, days)
	if err != nil {
		s.logger.Error("usage summary failed", zap.String("tenant_id", tenantID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := usageResponse{UsageSummary: summary}
	if s.quota != nil {
		if st, err := s.quota.Check(r.Context(), tenantID); err == nil {
			resp.Quota = st
		} else {
			s.logger.Warn("quota status unavailable", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
