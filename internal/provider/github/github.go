// Package github receives GitHub webhook deliveries via HTTP and forwards
// them as Events to a channel.
package github

import (
	"net/http"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

const loggerName = "github-event-provider"

// Provider validates webhook HTTP requests, parses them and forwards them
// to an event channel.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	c             chan<- *Event
}

type Option func(*Provider)

// WithPayloadSecret enables validating the signature of payloads with
// secret.
func WithPayloadSecret(secret string) Option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChan chan<- *Event, opts ...Option) *Provider {
	p := Provider{
		c:      eventChan,
		logger: zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&p)
	}

	return &p
}

// HTTPHandler handles a single webhook delivery.
// If the event channel is full, the event is dropped and
// http.StatusServiceUnavailable is returned to make GitHub record the
// failed delivery.
func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		logfields.DeliveryID(deliveryID),
		logfields.WebhookType(hookType),
	}

	logger := p.logger.With(logFields...)

	logger.Debug("received a http request", logfields.Event("github_http_request_received"))

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Debug(
		"received event",
		logfields.Event("github_event_received"),
		zap.ByteString("http_body", payload),
	)

	ev := Event{
		DeliveryID: deliveryID,
		Type:       hookType,
		JSON:       payload,
		Event:      event,
		LogFields:  logFields,
	}

	select {
	case p.c <- &ev:
		logger.Debug("event forwarded to channel", logfields.Event("github_event_forwarded"))

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("github_forwarding_event_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
		return
	}
}
