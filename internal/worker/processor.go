package worker

import (
	"context"
	"fmt"
	"time"

	"wacrm/internal/domain"
	"wacrm/internal/observability"
	"wacrm/internal/store"
	"wacrm/internal/util"
)

type ResultStore interface {
	UpdateActionResult(ctx context.Context, in store.ActionResult) (domain.Action, error)
}

// Handler executes the type-specific work for one action. A returned error
// marks the action FAILED; nil marks it SUCCESS. Handlers never touch the
// action's status or activity log.
type Handler func(ctx context.Context, act *store.PendingAction) error

// Processor runs one action to completion and persists the outcome exactly
// once, whatever happens. Adding an action type means registering a new
// Handler; the bookkeeping here stays untouched.
type Processor struct {
	Store    ResultStore
	Handlers map[domain.ActionType]Handler
	Now      func() time.Time
}

// Process dispatches by action type, appends one activity-log entry and
// persists the result. Handler failures are fully absorbed into the FAILED
// transition; only a store write failure is returned as an error.
func (p *Processor) Process(ctx context.Context, act store.PendingAction) (domain.Action, error) {
	handler, ok := p.Handlers[act.Action.Type]

	var handleErr error
	if !ok {
		handleErr = fmt.Errorf("no handler registered for action type %q", act.Action.Type)
	} else {
		handleErr = handler(ctx, &act)
	}

	phone := ""
	if act.Contact != nil {
		phone = act.Contact.Phone
	}

	entry := domain.Activity{Timestamp: p.now()}
	if handleErr == nil {
		act.Action.Status = domain.StatusSuccess
		entry.Status = domain.StatusSuccess
		entry.Message = fmt.Sprintf("Message sent to %s", phone)
		observability.ActionsProcessed.WithLabelValues(string(act.Action.Type), "success").Inc()
	} else {
		act.Action.Status = domain.StatusFailed
		entry.Status = domain.StatusFailed
		entry.Message = fmt.Sprintf("Failed to send message to %s: %s", phone, handleErr.Error())
		entry.Error = handleErr.Error()
		observability.ActionsProcessed.WithLabelValues(string(act.Action.Type), "failed").Inc()
	}
	act.Action.ActivityLog = append(act.Action.ActivityLog, entry)

	updated, err := p.Store.UpdateActionResult(ctx, store.ActionResult{
		ID:          act.Action.ID,
		Status:      act.Action.Status,
		ActivityLog: act.Action.ActivityLog,
		Now:         entry.Timestamp,
	})
	if err != nil {
		return domain.Action{}, fmt.Errorf("persist action %s: %w", act.Action.ID, err)
	}
	return updated, nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return util.NowUTC()
}
