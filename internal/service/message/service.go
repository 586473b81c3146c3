package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/singleflight"

	"github.com/campushub/messaging/internal/model"
	msgrepo "github.com/campushub/messaging/internal/repository/message"
)

var (
	// ErrInvalidMessage wraps all message validation failures.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrAlreadySent is returned when dispatch is attempted on a message
	// that already reached a terminal-success state.
	ErrAlreadySent = errors.New("message already sent")

	// ErrRetriesExhausted is returned when dispatch is attempted on a
	// terminally failed message without the force flag.
	ErrRetriesExhausted = errors.New("message retries exhausted")

	// ErrInvalidTransition is returned for state transitions the machine
	// does not allow. This is a caller error, never retried.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnsupportedType is returned when no transport is registered for
	// the message type. This is a configuration error.
	ErrUnsupportedType = errors.New("unsupported message type")

	errNoneAccepted = errors.New("transport accepted no recipients")
)

// ValidationError reports which message field failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: field %q %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidMessage
}

// Transport delivers a message over a concrete channel (SMTP, SMS, ...).
type Transport interface {
	Send(ctx context.Context, msg model.Message) (model.SendResult, error)
	Verify(ctx context.Context) error
}

type messageRepository interface {
	CreateMessage(context.Context, model.Message) (uuid.UUID, error)
	GetMessageByID(context.Context, uuid.UUID) (model.Message, error)
	GetMessages(context.Context, msgrepo.Filter) ([]model.Message, error)
	GetDueMessages(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	UpdateMessageState(ctx context.Context, id uuid.UUID, expected, status model.MessageStatus, retryCount int, nextAttemptAt *time.Time) error
	DeleteMessage(context.Context, uuid.UUID) error
}

type statusCache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

// Config bounds the engine's transport calls and retry backoff.
type Config struct {
	Retry       retry.Strategy
	SendTimeout time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DispatchResult is the outcome of a single dispatch attempt.
//
// A transport failure is not an error at this level: the message returns
// to PENDING (or becomes FAILED once the budget is spent) and Reason
// carries the cause. Skipped means a concurrent dispatch won the race and
// this call was a no-op.
type DispatchResult struct {
	Success    bool             `json:"success"`
	Skipped    bool             `json:"skipped,omitempty"`
	Status     model.MessageStatus `json:"status"`
	RetryCount int              `json:"retry_count"`
	Email      model.SendResult `json:"email,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Service owns the message state machine: creation, validation, send
// attempts, retry policy and status transitions.
type Service struct {
	repo       messageRepository
	transports map[model.MessageType]Transport
	cache      statusCache
	cfg        Config

	group singleflight.Group
	now   func() time.Time
}

// NewService creates a lifecycle engine over the given store, transports
// and status cache.
func NewService(repo messageRepository, transports map[model.MessageType]Transport, cache statusCache, cfg Config) *Service {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Minute
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 6 * time.Hour
	}

	return &Service{
		repo:       repo,
		transports: transports,
		cache:      cache,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateMessage validates and persists a new message. Sending is never
// triggered here: dispatch is always a separate step owned by the caller
// or the cron sweep.
func (s *Service) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if m.Type == "" {
		m.Type = model.MessageTypeEmail
	}
	if m.Priority == "" {
		m.Priority = model.PriorityNormal
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = 3
	}

	if err := validate(m); err != nil {
		return model.Message{}, err
	}

	m.RetryCount = 0
	m.Status = model.StatusPending
	if m.ScheduledAt != nil && m.ScheduledAt.After(s.now()) {
		m.Status = model.StatusScheduled
	}

	id, err := s.repo.CreateMessage(ctx, m)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}

	m.ID = id
	s.cacheStatus(ctx, id, m.Status)

	return m, nil
}

func validate(m model.Message) error {
	if !m.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "is not a known message type"}
	}
	if !m.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "is not a known priority"}
	}
	if len(m.To) == 0 {
		return &ValidationError{Field: "to", Reason: "requires at least one recipient"}
	}
	for _, to := range m.To {
		if to == "" {
			return &ValidationError{Field: "to", Reason: "contains an empty recipient"}
		}
	}
	if m.Subject == "" {
		return &ValidationError{Field: "subject", Reason: "is required"}
	}
	if m.Body == "" && m.HTMLBody == "" {
		return &ValidationError{Field: "body", Reason: "requires body or html_body"}
	}
	if m.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Reason: "must not be negative"}
	}

	return nil
}

// Dispatch attempts delivery of a message and records the outcome.
//
// Concurrent dispatches of the same id collapse into a single transport
// invocation: in-process via singleflight, across processes via the
// store's compare-and-swap update. The loser observes Skipped=true.
//
// With force=true a terminally failed message gets one extra attempt,
// bypassing the retry cap (admin re-trigger).
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, force bool) (DispatchResult, error) {
	v, err, _ := s.group.Do(id.String(), func() (interface{}, error) {
		return s.dispatch(ctx, id, force)
	})
	if err != nil {
		return DispatchResult{}, err
	}

	return v.(DispatchResult), nil
}

func (s *Service) dispatch(ctx context.Context, id uuid.UUID, force bool) (DispatchResult, error) {
	msg, err := s.repo.GetMessageByID(ctx, id)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("load message: %w", err)
	}

	forced := force && msg.Status == model.StatusFailed && msg.RetryCount > msg.MaxRetries

	transport, ok := s.transports[msg.Type]
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrUnsupportedType, msg.Type)
	}

	// Validate the current state before touching the transport so that
	// terminal messages never produce a duplicate send.
	if !forced {
		if _, err := NextState(msg.Status, msg.RetryCount, msg.MaxRetries, true); err != nil {
			return DispatchResult{}, err
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	res, sendErr := transport.Send(sendCtx, msg)
	if sendErr == nil && len(res.Accepted) == 0 {
		sendErr = errNoneAccepted
	}
	succeeded := sendErr == nil

	var tr Transition
	if forced {
		// One extra attempt outside the budget; a failure keeps the
		// message terminally FAILED.
		tr = Transition{Status: model.StatusSent, RetryCount: msg.RetryCount}
		if !succeeded {
			tr = Transition{Status: model.StatusFailed, RetryCount: msg.RetryCount + 1}
		}
	} else {
		if tr, err = NextState(msg.Status, msg.RetryCount, msg.MaxRetries, succeeded); err != nil {
			return DispatchResult{}, err
		}
	}

	var nextAttempt *time.Time
	if tr.Status == model.StatusPending {
		due := s.now().Add(backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, tr.RetryCount))
		nextAttempt = &due
	}

	err = s.repo.UpdateMessageState(ctx, id, msg.Status, tr.Status, tr.RetryCount, nextAttempt)
	if errors.Is(err, msgrepo.ErrStatusConflict) {
		zlog.Logger.Info().Str("id", id.String()).Msg("concurrent dispatch won the race, skipping")
		return DispatchResult{Skipped: true, Status: msg.Status, RetryCount: msg.RetryCount}, nil
	}
	if err != nil {
		return DispatchResult{}, fmt.Errorf("update message state: %w", err)
	}

	s.cacheStatus(ctx, id, tr.Status)

	result := DispatchResult{
		Success:    succeeded,
		Status:     tr.Status,
		RetryCount: tr.RetryCount,
		Email:      res,
	}

	if sendErr != nil {
		result.Reason = sendErr.Error()
		if tr.Status == model.StatusFailed {
			zlog.Logger.Error().Err(sendErr).Str("id", id.String()).Msg("message failed permanently")
		} else {
			zlog.Logger.Warn().Err(sendErr).Str("id", id.String()).Int("retry_count", tr.RetryCount).Msg("send failed, will retry")
		}
	}

	return result, nil
}

// Reply creates a new message referencing the original and runs it through
// the same create and dispatch path. The original message is not mutated.
// Authorization is the caller's concern.
func (s *Service) Reply(ctx context.Context, originalID uuid.UUID, reply model.Message) (model.Message, DispatchResult, error) {
	original, err := s.repo.GetMessageByID(ctx, originalID)
	if err != nil {
		return model.Message{}, DispatchResult{}, fmt.Errorf("load original message: %w", err)
	}

	if reply.Metadata == nil {
		reply.Metadata = make(map[string]string)
	}
	reply.Metadata["in_reply_to"] = original.ID.String()

	created, err := s.CreateMessage(ctx, reply)
	if err != nil {
		return model.Message{}, DispatchResult{}, err
	}

	res, err := s.Dispatch(ctx, created.ID, false)
	if err != nil {
		return created, DispatchResult{}, err
	}

	return created, res, nil
}

// MarkDelivered transitions a SENT message to DELIVERED.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, model.StatusDelivered)
}

// MarkRead transitions a DELIVERED message to READ.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, model.StatusRead)
}

func (s *Service) mark(ctx context.Context, id uuid.UUID, target model.MessageStatus) error {
	msg, err := s.repo.GetMessageByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	required := markTransitions[target]
	if msg.Status != required {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, target)
	}

	err = s.repo.UpdateMessageState(ctx, id, msg.Status, target, msg.RetryCount, nil)
	if errors.Is(err, msgrepo.ErrStatusConflict) {
		return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("update message state: %w", err)
	}

	s.cacheStatus(ctx, id, target)

	return nil
}

// GetMessageByID retrieves a single message.
func (s *Service) GetMessageByID(ctx context.Context, id uuid.UUID) (model.Message, error) {
	return s.repo.GetMessageByID(ctx, id)
}

// GetMessages retrieves messages matching the filter.
func (s *Service) GetMessages(ctx context.Context, filter msgrepo.Filter) ([]model.Message, error) {
	messages, err := s.repo.GetMessages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return messages, nil
}

// GetMessageStatusByID returns the message status, served from the cache
// when possible.
func (s *Service) GetMessageStatusByID(ctx context.Context, id uuid.UUID) (model.MessageStatus, error) {
	if s.cache != nil {
		status, err := s.cache.GetWithRetry(ctx, s.cfg.Retry, id.String())
		if err == nil {
			return model.MessageStatus(status), nil
		}
		if !errors.Is(err, redis.Nil) {
			zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get message status from cache")
		}
	}

	msg, err := s.repo.GetMessageByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get message status: %w", err)
	}

	s.cacheStatus(ctx, id, msg.Status)

	return msg.Status, nil
}

// DeleteMessage removes a message permanently.
func (s *Service) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// DueMessages lists messages eligible for a dispatch attempt right now.
func (s *Service) DueMessages(ctx context.Context, limit int) ([]model.Message, error) {
	return s.repo.GetDueMessages(ctx, s.now(), limit)
}

// VerifyTransports pings every registered transport, returning the first
// failure. Used by the health endpoint.
func (s *Service) VerifyTransports(ctx context.Context) error {
	for typ, transport := range s.transports {
		if err := transport.Verify(ctx); err != nil {
			return fmt.Errorf("transport %s: %w", typ, err)
		}
	}

	return nil
}

func (s *Service) cacheStatus(ctx context.Context, id uuid.UUID, status model.MessageStatus) {
	if s.cache == nil {
		return
	}

	if err := s.cache.SetWithRetry(ctx, s.cfg.Retry, id.String(), string(status)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache message status")
	}
}
