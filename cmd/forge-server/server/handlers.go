/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/internal/validation"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/pipeline"
	"github.com/neopilotai/FORGE/pkg/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// webhookRequest mirrors pipeline.Request's JSON-able fields.
type webhookRequest struct {
	RawLog         string               `json:"rawLog"`
	WorkflowConfig string               `json:"workflowConfig"`
	ChangeSet      string               `json:"changeSet"`
	Model          string               `json:"model"`
	Root           string               `json:"root"`
	Metadata       types.WorkflowMetadata `json:"metadata"`
	AutoApply      bool                 `json:"autoApply"`
	SkipDryRun     bool                 `json:"skipDryRun"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.RawLog == "" {
		http.Error(w, "rawLog is required", http.StatusBadRequest)
		return
	}
	if req.Root != "" {
		if err := validation.ValidateFilePath(req.Root); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	result, err := s.driver.Run(r.Context(), pipeline.Request{
		RawLog:         req.RawLog,
		WorkflowConfig: req.WorkflowConfig,
		ChangeSet:      req.ChangeSet,
		Model:          req.Model,
		Root:           req.Root,
		Metadata:       req.Metadata,
		AutoApply:      req.AutoApply,
		SkipDryRun:     req.SkipDryRun,
	})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Warn("pipeline run failed", zap.String("stage", result.Stage), zap.Error(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"stage": result.Stage,
			"error": err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filter := audit.QueryFilter{
		Resource: r.URL.Query().Get("resource"),
		Limit:    100,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = types.AuditStatus(status)
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || validation.ValidateLimit(limit) != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	entries, err := s.store.Query(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
