package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/campushub/messaging/internal/api/dto"
	"github.com/campushub/messaging/internal/api/respond"
	"github.com/campushub/messaging/internal/cron"
	"github.com/campushub/messaging/internal/model"
	msgrepo "github.com/campushub/messaging/internal/repository/message"
	msgsvc "github.com/campushub/messaging/internal/service/message"
)

// messageService defines the interface that the Handler depends on.
//
// It abstracts the lifecycle engine: creating, dispatching, replying to
// and managing the status of messages.
type messageService interface {
	CreateMessage(context.Context, model.Message) (model.Message, error)
	Dispatch(ctx context.Context, id uuid.UUID, force bool) (msgsvc.DispatchResult, error)
	Reply(ctx context.Context, originalID uuid.UUID, reply model.Message) (model.Message, msgsvc.DispatchResult, error)
	MarkDelivered(context.Context, uuid.UUID) error
	MarkRead(context.Context, uuid.UUID) error
	GetMessageByID(context.Context, uuid.UUID) (model.Message, error)
	GetMessages(context.Context, msgrepo.Filter) ([]model.Message, error)
	GetMessageStatusByID(context.Context, uuid.UUID) (model.MessageStatus, error)
	DeleteMessage(context.Context, uuid.UUID) error
}

type cronRunner interface {
	RunOnce(ctx context.Context) cron.Report
}

// Handler handles HTTP requests related to messages.
type Handler struct {
	service    messageService
	dispatcher cronRunner
	validator  *validator.Validate
}

// NewHandler creates a new Handler instance.
func NewHandler(s messageService, d cronRunner, v *validator.Validate) *Handler {
	return &Handler{service: s, dispatcher: d, validator: v}
}

// CreateContact handles the public contact-form submission. The response
// is deliberately generic: delivery happens later via the cron sweep.
func (h *Handler) CreateContact(c *ginext.Context) {
	msg, ok := h.decodeMessage(c)
	if !ok {
		return
	}

	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	msg.Metadata["source"] = "contact_form"
	msg.Metadata["client_ip"] = c.ClientIP()

	created, err := h.service.CreateMessage(c.Request.Context(), msg)
	if err != nil {
		h.fail(c, err, "failed to create contact message")
		return
	}

	respond.Created(c.Writer, map[string]string{"id": created.ID.String()})
}

// Create handles the admin message creation endpoint.
func (h *Handler) Create(c *ginext.Context) {
	msg, ok := h.decodeMessage(c)
	if !ok {
		return
	}

	created, err := h.service.CreateMessage(c.Request.Context(), msg)
	if err != nil {
		h.fail(c, err, "failed to create message")
		return
	}

	respond.Created(c.Writer, created)
}

// GetAll lists messages filtered by status, type, priority and scheduled range.
func (h *Handler) GetAll(c *ginext.Context) {
	filter := msgrepo.Filter{
		Status:   model.MessageStatus(c.Query("status")),
		Type:     model.MessageType(c.Query("type")),
		Priority: model.MessagePriority(c.Query("priority")),
	}

	if from, ok := parseTimeQuery(c, "scheduled_from"); ok {
		filter.ScheduledFrom = from
	}
	if to, ok := parseTimeQuery(c, "scheduled_to"); ok {
		filter.ScheduledTo = to
	}

	messages, err := h.service.GetMessages(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, msgrepo.ErrNoMessagesFound) {
			respond.OK(c.Writer, []model.Message{})
			return
		}

		h.fail(c, err, "failed to get messages")
		return
	}

	respond.OK(c.Writer, messages)
}

// Get returns a single message.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	msg, err := h.service.GetMessageByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get message")
		return
	}

	respond.OK(c.Writer, msg)
}

// GetStatus returns just the lifecycle status, served from the cache
// when possible.
func (h *Handler) GetStatus(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	status, err := h.service.GetMessageStatusByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get message status")
		return
	}

	respond.OK(c.Writer, map[string]model.MessageStatus{"status": status})
}

// Send triggers one dispatch attempt. With ?force=true a terminally
// failed message gets one extra attempt outside the retry cap.
func (h *Handler) Send(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	force := c.Query("force") == "true"

	res, err := h.service.Dispatch(c.Request.Context(), id, force)
	if err != nil {
		h.fail(c, err, "failed to dispatch message")
		return
	}

	respond.OK(c.Writer, res)
}

// Reply creates and dispatches a response referencing the original message.
func (h *Handler) Reply(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	msg, ok := h.decodeMessage(c)
	if !ok {
		return
	}

	created, res, err := h.service.Reply(c.Request.Context(), id, msg)
	if err != nil {
		h.fail(c, err, "failed to reply to message")
		return
	}

	respond.Created(c.Writer, map[string]interface{}{
		"message":  created,
		"dispatch": res,
	})
}

// MarkDelivered transitions a SENT message to DELIVERED.
func (h *Handler) MarkDelivered(c *ginext.Context) {
	h.mark(c, h.service.MarkDelivered, model.StatusDelivered)
}

// MarkRead transitions a DELIVERED message to READ.
func (h *Handler) MarkRead(c *ginext.Context) {
	h.mark(c, h.service.MarkRead, model.StatusRead)
}

func (h *Handler) mark(c *ginext.Context, fn func(context.Context, uuid.UUID) error, target model.MessageStatus) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to mark message "+string(target))
		return
	}

	respond.OK(c.Writer, map[string]model.MessageStatus{"status": target})
}

// Delete removes a message permanently.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to delete message")
		return
	}

	respond.OK(c.Writer, "message deleted")
}

// Cron runs one dispatch sweep and returns the aggregate report.
func (h *Handler) Cron(c *ginext.Context) {
	report := h.dispatcher.RunOnce(c.Request.Context())
	respond.OK(c.Writer, report)
}

// decodeMessage parses and validates the request body into a model.Message.
// On failure it writes the error response and returns ok=false.
func (h *Handler) decodeMessage(c *ginext.Context) (model.Message, bool) {
	var req dto.CreateMessageRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return model.Message{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return model.Message{}, false
	}

	msg := model.Message{
		From:       req.From,
		To:         req.To,
		CC:         req.CC,
		BCC:        req.BCC,
		Subject:    req.Subject,
		Body:       req.Body,
		HTMLBody:   req.HTMLBody,
		Type:       model.MessageType(req.Type),
		Priority:   model.MessagePriority(req.Priority),
		MaxRetries: req.MaxRetries,
		Metadata:   req.Metadata,
	}

	for _, att := range req.Attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			Filename:    att.Filename,
			Content:     att.Content,
			ContentType: att.ContentType,
		})
	}

	if req.ScheduledAt != "" {
		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			zlog.Logger.Warn().Err(err).Msg("failed to parse scheduled_at")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid scheduled_at format"))
			return model.Message{}, false
		}
		msg.ScheduledAt = &scheduledAt
	}

	return msg, true
}

func (h *Handler) paramID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil || id == uuid.Nil {
		zlog.Logger.Warn().Str("id", idStr).Msg("invalid message id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	return id, true
}

// fail maps engine and repository errors to HTTP status codes.
func (h *Handler) fail(c *ginext.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, msgrepo.ErrMessageNotFound):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("message not found"))
	case errors.Is(err, msgsvc.ErrInvalidMessage):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusBadRequest, err)
	case errors.Is(err, msgsvc.ErrAlreadySent),
		errors.Is(err, msgsvc.ErrRetriesExhausted),
		errors.Is(err, msgsvc.ErrInvalidTransition):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusConflict, err)
	default:
		zlog.Logger.Error().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
	}
}

func parseTimeQuery(c *ginext.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, false
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}

	return &t, true
}
