// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"grimm.is/flowshape/internal/qos"
)

// RuleService is the rule-management surface the API drives.
type RuleService interface {
	GetAllPolicies() []qos.Policy
	SetPolicy(protocol string, priority int, limit *int64) (qos.Policy, error)
	RemovePolicy(protocol string) bool
}

// RuleRequest is the body of POST /api/qos/rules.
type RuleRequest struct {
	Protocol       string `json:"protocol"`
	Priority       int    `json:"priority"`
	BandwidthLimit *int64 `json:"bandwidth_limit,omitempty"`
}

// RulesHandlers serves the QoS rule endpoints.
type RulesHandlers struct {
	rules RuleService
}

// NewRulesHandlers creates the rule handlers.
func NewRulesHandlers(rules RuleService) *RulesHandlers {
	return &RulesHandlers{rules: rules}
}

// RegisterRoutes registers the rule routes on router.
func (h *RulesHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/qos/rules", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/qos/rules", h.handleSet).Methods(http.MethodPost)
	router.HandleFunc("/qos/rules/{protocol}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *RulesHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"rules": h.rules.GetAllPolicies(),
	})
}

func (h *RulesHandlers) handleSet(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !BindJSON(w, r, &req) {
		return
	}
	p, err := h.rules.SetPolicy(req.Protocol, req.Priority, req.BandwidthLimit)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"rule":   p,
	})
}

func (h *RulesHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	protocol := mux.Vars(r)["protocol"]
	removed := h.rules.RemovePolicy(protocol)
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"removed": removed,
	})
}
