package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/campushub/messaging/internal/model"
	msgsvc "github.com/campushub/messaging/internal/service/message"
)

type fakeEngine struct {
	due       []model.Message
	dueErr    error
	results   map[uuid.UUID]msgsvc.DispatchResult
	errs      map[uuid.UUID]error
	dispatched []uuid.UUID
}

func (e *fakeEngine) DueMessages(context.Context, int) ([]model.Message, error) {
	return e.due, e.dueErr
}

func (e *fakeEngine) Dispatch(_ context.Context, id uuid.UUID, _ bool) (msgsvc.DispatchResult, error) {
	e.dispatched = append(e.dispatched, id)
	if err := e.errs[id]; err != nil {
		return msgsvc.DispatchResult{}, err
	}
	return e.results[id], nil
}

func dueMessage() model.Message {
	return model.Message{ID: uuid.New(), Status: model.StatusPending}
}

func TestRunOnce_Aggregates(t *testing.T) {
	sent := dueMessage()
	failed := dueMessage()
	skipped := dueMessage()
	broken := dueMessage()

	engine := &fakeEngine{
		due: []model.Message{sent, failed, skipped, broken},
		results: map[uuid.UUID]msgsvc.DispatchResult{
			sent.ID:    {Success: true, Status: model.StatusSent},
			failed.ID:  {Status: model.StatusPending, RetryCount: 1, Reason: "smtp: connection refused"},
			skipped.ID: {Skipped: true, Status: model.StatusPending},
		},
		errs: map[uuid.UUID]error{
			broken.ID: errors.New("load message: not found"),
		},
	}

	report := NewDispatcher(engine, 100).RunOnce(context.Background())

	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 2)
	assert.Len(t, engine.dispatched, 4)
}

func TestRunOnce_QueryFailure(t *testing.T) {
	engine := &fakeEngine{dueErr: errors.New("db down")}

	report := NewDispatcher(engine, 100).RunOnce(context.Background())

	assert.Zero(t, report.Processed)
	assert.Len(t, report.Errors, 1)
	assert.Empty(t, engine.dispatched)
}

func TestRunOnce_EmptySweep(t *testing.T) {
	report := NewDispatcher(&fakeEngine{}, 100).RunOnce(context.Background())

	assert.Zero(t, report.Processed)
	assert.Empty(t, report.Errors)
}

func TestRunOnce_ContextCancelStopsBatch(t *testing.T) {
	first := dueMessage()
	second := dueMessage()

	engine := &fakeEngine{due: []model.Message{first, second}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewDispatcher(engine, 100).RunOnce(ctx)

	assert.Zero(t, report.Processed)
	assert.Empty(t, engine.dispatched)
	assert.Len(t, report.Errors, 1)
}
