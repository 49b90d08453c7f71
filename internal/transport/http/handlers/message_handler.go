package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/service"
	"github.com/vkoval/agora/internal/transport/http/middleware"
	"github.com/vkoval/agora/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
	logger         *zap.Logger
}

func NewMessageHandler(messageService *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, logger: logger}
}

type sendMessageRequest struct {
	Type      string      `json:"type"` // "channel" | "direct"
	ChannelID uuid.UUID   `json:"channel_id,omitempty"`
	UserIDs   []uuid.UUID `json:"user_ids,omitempty"`
	Topic     string      `json:"topic,omitempty"`
	Content   string      `json:"content"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	var recipient domain.Recipient
	switch domain.RecipientType(req.Type) {
	case domain.RecipientChannel:
		recipient = domain.ChannelRecipient(req.ChannelID)
	case domain.RecipientDirect:
		recipient = domain.DirectRecipient(req.UserIDs...)
	default:
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "Recipient type must be channel or direct")
		return
	}

	if errs := validator.ValidateMessage(req.Content, req.Topic, recipient.IsChannel()); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	sent, err := h.messageService.Send(r.Context(), []service.MessageDraft{{
		SenderID:  userID,
		Recipient: recipient,
		Topic:     req.Topic,
		Content:   req.Content,
	}})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrMissingTopic),
			errors.Is(err, service.ErrEmptyRecipientList), errors.Is(err, service.ErrEmptyAudience):
			writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error())
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Recipient not found")
		default:
			h.logger.Error("send message", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, sent[0].Message)
}

type editMessageRequest struct {
	Content        *string    `json:"content,omitempty"`
	Topic          *string    `json:"topic,omitempty"`
	ChannelID      *uuid.UUID `json:"channel_id,omitempty"`
	PropagateMode  string     `json:"propagate_mode,omitempty"`
	NotifyOldTopic bool       `json:"notify_old_topic,omitempty"`
	NotifyNewTopic bool       `json:"notify_new_topic,omitempty"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.Topic != nil {
		if errs := validator.ValidateTopic(*req.Topic); errs.HasErrors() {
			writeValidationErrors(w, errs)
			return
		}
	}

	result, err := h.messageService.EditMessage(r.Context(), userID, messageID, service.EditInput{
		Content:        req.Content,
		Topic:          req.Topic,
		ChannelID:      req.ChannelID,
		PropagateMode:  domain.PropagateMode(req.PropagateMode),
		NotifyOldTopic: req.NotifyOldTopic,
		NotifyNewTopic: req.NotifyNewTopic,
	})
	if err != nil {
		var deadline *service.DeadlineExceededError
		switch {
		case errors.As(err, &deadline):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{
					"code":             "MOVE_DEADLINE_EXCEEDED",
					"message":          deadline.Error(),
					"first_movable_id": deadline.FirstMovableID,
					"movable_count":    deadline.MovableCount,
					"total_count":      deadline.TotalCount,
				},
			})
		case errors.Is(err, service.ErrEmptyEdit), errors.Is(err, service.ErrInvalidPropagate),
			errors.Is(err, service.ErrContentCannotMove), errors.Is(err, service.ErrNotChannelMessage),
			errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "INVALID_EDIT", err.Error())
		case errors.Is(err, service.ErrEditWindowExpired):
			writeError(w, http.StatusBadRequest, "EDIT_WINDOW_EXPIRED", "The edit window for this message has expired")
		case errors.Is(err, service.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You cannot edit this message")
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Destination channel not found")
		default:
			h.logger.Error("edit message", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, true)
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, false)
}

func (h *MessageHandler) react(w http.ResponseWriter, r *http.Request, add bool) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.messageService.React(r.Context(), userID, messageID, req.Emoji, add); err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyReaction):
			writeError(w, http.StatusBadRequest, "INVALID_REACTION", "Reaction emoji is required")
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		default:
			h.logger.Error("react", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
