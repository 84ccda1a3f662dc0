package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wacrm/internal/observability"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store"
)

type TemplateSender interface {
	SendTemplateMessage(ctx context.Context, creds whatsapp.Credentials, to string, tpl whatsapp.TemplateRef, components []map[string]any) error
}

// SendTemplateHandler delivers one SEND_TEMPLATE_MESSAGE action through the
// Graph API, rate limited per process and guarded by a circuit breaker.
type SendTemplateHandler struct {
	Sender  TemplateSender
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
	Timeout time.Duration
}

func (h *SendTemplateHandler) Handle(ctx context.Context, act *store.PendingAction) error {
	if act.Contact == nil || act.Profile == nil {
		return errors.New("action is missing its contact or profile")
	}
	if act.Template == nil {
		return errors.New("action has no template")
	}

	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	creds := whatsapp.Credentials{
		AccessToken:   act.Profile.AccessToken,
		PhoneNumberID: act.Profile.PhoneNumberID,
		BusinessID:    act.Profile.BusinessID,
	}
	tpl := whatsapp.TemplateRef{Name: act.Template.Name, Language: act.Template.Language}

	call := func() (any, error) {
		sendCtx := ctx
		if h.Timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, h.Timeout)
			defer cancel()
		}
		return nil, h.Sender.SendTemplateMessage(sendCtx, creds, act.Contact.Phone, tpl, act.Action.Data.Components)
	}

	start := time.Now()
	var err error
	if h.Breaker != nil {
		_, err = h.Breaker.Execute(call)
	} else {
		_, err = call()
	}
	observability.GraphLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		status := 0
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		observability.GraphSend.WithLabelValues("error", strconv.Itoa(status)).Inc()
		return err
	}
	observability.GraphSend.WithLabelValues("ok", "200").Inc()
	return nil
}
