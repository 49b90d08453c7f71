package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/service"
	"github.com/vkoval/agora/internal/transport/http/middleware"
)

type FlagHandler struct {
	flagService *service.FlagService
	logger      *zap.Logger
}

func NewFlagHandler(flagService *service.FlagService, logger *zap.Logger) *FlagHandler {
	return &FlagHandler{flagService: flagService, logger: logger}
}

type updateFlagsRequest struct {
	Messages []int64 `json:"messages"`
	Flag     string  `json:"flag"`
	Op       string  `json:"op"` // "add" | "remove"
}

func (h *FlagHandler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req updateFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	var add bool
	switch req.Op {
	case "add":
		add = true
	case "remove":
		add = false
	default:
		writeError(w, http.StatusBadRequest, "INVALID_OP", "Op must be add or remove")
		return
	}

	result, err := h.flagService.UpdateFlags(r.Context(), userID, req.Messages, req.Flag, add)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownFlag):
			writeError(w, http.StatusBadRequest, "UNKNOWN_FLAG", "Unknown message flag")
		case errors.Is(err, service.ErrFlagNotEditable):
			writeError(w, http.StatusBadRequest, "FLAG_NOT_EDITABLE", "This flag cannot be changed through the API")
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "One or more messages do not exist")
		default:
			h.logger.Error("update flags", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// markAllReadBudget bounds one HTTP request; the client repeats the call
// until the response says complete.
const markAllReadBudget = 5 * time.Second

func (h *FlagHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result, err := h.flagService.MarkAllRead(r.Context(), userID, markAllReadBudget)
	if err != nil {
		h.logger.Error("mark all read", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
