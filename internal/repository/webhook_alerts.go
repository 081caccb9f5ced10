package repository

import (
	"context"
	"errors"
	"time"

	"ClientPulse/internal/domain/models"
	"ClientPulse/internal/domain/repository"
	pkghttp "ClientPulse/pkg/http"
)

// WebhookAlertPublisher posts switch alerts to an operator-configured HTTP
// endpoint, for desks that consume alerts without a Kafka subscription.
type WebhookAlertPublisher struct {
	client *pkghttp.Client
	url    string
}

// NewWebhookAlertPublisher creates a webhook alert publisher.
func NewWebhookAlertPublisher(url string, timeout time.Duration) repository.AlertPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookAlertPublisher{
		client: pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		url:    url,
	}
}

func (p *WebhookAlertPublisher) PublishAlert(ctx context.Context, a *models.SwitchAlert) error {
	return p.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    p.url,
		Body:   a,
	}, nil)
}

func (p *WebhookAlertPublisher) Close() error { return nil }

// FanoutAlertPublisher delivers each alert to every configured destination.
type FanoutAlertPublisher struct {
	sinks []repository.AlertPublisher
}

// NewFanoutAlertPublisher composes alert publishers. Nil sinks are skipped.
func NewFanoutAlertPublisher(sinks ...repository.AlertPublisher) repository.AlertPublisher {
	filtered := make([]repository.AlertPublisher, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &FanoutAlertPublisher{sinks: filtered}
}

func (p *FanoutAlertPublisher) PublishAlert(ctx context.Context, a *models.SwitchAlert) error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.PublishAlert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *FanoutAlertPublisher) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
