package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// WebhookNotification is a normalized payment notification extracted from a
// provider webhook.
type WebhookNotification struct {
	// ProviderEvent is the original provider event name, e.g.
	// "transaction.completed".
	ProviderEvent string

	// Reference is the provider's transaction identifier.
	Reference string

	// SubscriptionID is recovered from the custom data the gateway attached
	// when charging. uuid.Nil when the event is unrelated to a charge made
	// through this engine.
	SubscriptionID uuid.UUID

	SubjectID uuid.UUID
	Status    string
}

// Settled reports whether the notification confirms a completed payment.
func (n *WebhookNotification) Settled() bool {
	return n.ProviderEvent == "transaction.completed" || n.ProviderEvent == "transaction.paid"
}

// PaddleWebhook verifies and applies Paddle webhook notifications to the
// lifecycle engine. Completed transactions settle the referenced
// subscription through MarkPaid.
type PaddleWebhook struct {
	verifier *paddle.WebhookVerifier
	svc      Service
	log      *slog.Logger
}

// NewPaddleWebhook creates the webhook ingress. The secret is the endpoint
// secret from the Paddle dashboard; signature verification is mandatory.
func NewPaddleWebhook(secret string, svc Service, log *slog.Logger) (*PaddleWebhook, error) {
	if secret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if svc == nil {
		return nil, errors.New("subscription service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaddleWebhook{
		verifier: paddle.NewWebhookVerifier(secret),
		svc:      svc,
		log:      log,
	}, nil
}

// Parse verifies the payload signature and extracts a normalized
// notification. Returns ErrWebhookVerification when the signature does not
// match.
func (w *PaddleWebhook) Parse(ctx context.Context, payload []byte, signature string) (*WebhookNotification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := w.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerification, err)
	}
	if !valid {
		return nil, ErrWebhookVerification
	}

	var event struct {
		EventType string `json:"event_type"`
		Data      struct {
			ID         string            `json:"id"`
			Status     string            `json:"status"`
			CustomData map[string]string `json:"custom_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	n := &WebhookNotification{
		ProviderEvent: event.EventType,
		Reference:     event.Data.ID,
		Status:        event.Data.Status,
	}
	if raw, ok := event.Data.CustomData["subscription_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			n.SubscriptionID = id
		}
	}
	if raw, ok := event.Data.CustomData["subject_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			n.SubjectID = id
		}
	}
	return n, nil
}

// Apply settles the subscription referenced by a completed-payment
// notification. Notifications without a subscription reference or for other
// event types are ignored.
func (w *PaddleWebhook) Apply(ctx context.Context, n *WebhookNotification) error {
	if !n.Settled() || n.SubscriptionID == uuid.Nil {
		return nil
	}
	if _, err := w.svc.MarkPaid(ctx, n.SubscriptionID); err != nil {
		return fmt.Errorf("failed to settle subscription %s: %w", n.SubscriptionID, err)
	}
	return nil
}

// Handler returns an http.Handler for the webhook endpoint. Verification
// failures respond 400; settlement failures respond 500 so the provider
// retries delivery.
func (w *PaddleWebhook) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(rw, "failed to read body", http.StatusBadRequest)
			return
		}

		n, err := w.Parse(r.Context(), payload, r.Header.Get("Paddle-Signature"))
		if err != nil {
			w.log.WarnContext(r.Context(), "webhook rejected", slog.Any("error", err))
			http.Error(rw, "invalid webhook", http.StatusBadRequest)
			return
		}

		if err := w.Apply(r.Context(), n); err != nil {
			w.log.ErrorContext(r.Context(), "webhook settlement failed",
				slog.String("event", n.ProviderEvent),
				slog.String("reference", n.Reference),
				slog.Any("error", err),
			)
			http.Error(rw, "settlement failed", http.StatusInternalServerError)
			return
		}

		rw.WriteHeader(http.StatusOK)
	})
}
