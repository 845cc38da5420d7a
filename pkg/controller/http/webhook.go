package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/controller/github"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// WebhookHandler handles GitHub release webhooks
type WebhookHandler struct {
	triggerUC   interfaces.TriggerUseCase
	maxBodySize int64
	retryAfter  time.Duration
	now         func() time.Time
}

type webhookOption func(*WebhookHandler)

func withMaxBodySize(n int64) webhookOption {
	return func(h *WebhookHandler) { h.maxBodySize = n }
}

func withRetryAfter(d time.Duration) webhookOption {
	return func(h *WebhookHandler) { h.retryAfter = d }
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(triggerUC interfaces.TriggerUseCase, opts ...webhookOption) *WebhookHandler {
	h := &WebhookHandler{
		triggerUC:   triggerUC,
		maxBodySize: DefaultMaxBodySize,
		retryAfter:  30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type webhookResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	FieldPath string `json:"field_path,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Handle processes webhook requests
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Webhook body too large", "limit", tooLarge.Limit)
			writeError(ctx, w, goerr.New("request body too large"), http.StatusRequestEntityTooLarge)
			return
		}
		logger.Error("Failed to read request body", "error", err)
		writeError(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == github.EventTypePing {
		writeJSON(ctx, w, http.StatusOK, webhookResponse{Status: "pong"})
		return
	}

	event := h.newInboundEvent(r, eventType, body)
	if event.Release != nil {
		logger.Info("Received release event",
			"owner", event.Release.Owner,
			"repo", event.Release.Repo,
			"tag", event.Release.TagName,
			"action", event.Release.Action,
		)
	}

	result, err := h.triggerUC.HandleEvent(ctx, event)
	if err != nil {
		if errors.Is(err, types.ErrPipelineUnavailable) {
			logger.Warn("Pipeline unavailable, asking sender to retry", "error", err)
			w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
			writeError(ctx, w, goerr.New("pipeline unavailable"), http.StatusServiceUnavailable)
			return
		}
		logger.Error("Failed to handle webhook event", "error", err)
		writeError(ctx, w, err, http.StatusInternalServerError)
		return
	}

	resp := webhookResponse{EventID: string(event.Identity())}
	if result.Run != nil {
		resp.RunID = string(result.Run.ID)
	}

	switch result.Outcome {
	case model.OutcomeTriggered:
		resp.Status = "triggered"
		writeJSON(ctx, w, http.StatusAccepted, resp)

	case model.OutcomeDuplicate:
		resp.Status = "duplicate"
		writeJSON(ctx, w, http.StatusOK, resp)

	case model.OutcomeRejected:
		if result.Decision.Reason == model.RejectInvalidSignature {
			logger.Warn("Invalid webhook signature")
			writeError(ctx, w, goerr.New("invalid signature"), http.StatusUnauthorized)
			return
		}
		resp.Status = "declined"
		resp.Reason = string(result.Decision.Reason)
		resp.FieldPath = result.Decision.FieldPath
		writeJSON(ctx, w, http.StatusOK, resp)

	default:
		writeError(ctx, w, goerr.New("unknown trigger outcome", goerr.V("outcome", result.Outcome)), http.StatusInternalServerError)
	}
}

// newInboundEvent captures the delivery. The payload is nil when the body is not JSON, which the
// gate treats as a filter mismatch.
func (h *WebhookHandler) newInboundEvent(r *http.Request, eventType string, body []byte) *model.InboundEvent {
	logger := ctxlog.From(r.Context())

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = r.Header.Get("X-Hub-Signature")
	}

	var payload any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		logger.Warn("Webhook body is not JSON", "error", err)
		payload = nil
	}

	release, err := github.ParseRelease(eventType, body)
	if err != nil {
		logger.Warn("Failed to extract release metadata", "error", err)
	}

	return &model.InboundEvent{
		DeliveryID:      r.Header.Get("X-GitHub-Delivery"),
		EventType:       eventType,
		RawBody:         body,
		SignatureHeader: signature,
		Payload:         payload,
		ReceivedAt:      h.now(),
		Release:         release,
	}
}
