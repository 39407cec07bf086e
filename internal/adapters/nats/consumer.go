package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/safego"
)

// subjectMarker precedes the event kind in invalidation subjects, e.g.
// shutterbug.invalidate.user.updated.
const subjectMarker = "invalidate."

// InvalidationSubscriber receives cache invalidation events over core NATS.
// Invalidations are only meaningful to running processes, so there is no
// durable consumer behind them.
type InvalidationSubscriber struct {
	nc      *nats.Conn
	logger  domain.Logger
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
}

var _ domain.EventSubscriber = (*InvalidationSubscriber)(nil)

// NewInvalidationSubscriber connects to the NATS server named in the config.
// The returned cleanup func drains the connection.
func NewInvalidationSubscriber(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*InvalidationSubscriber, func(), error) {
	appFullCfg := cfgProvider.Get()
	natsCfg := appFullCfg.NATS

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-invalidations", appFullCfg.App.ServiceName)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(natsCfg.MaxReconnects),
		nats.ReconnectWait(config.TTL(natsCfg.ReconnectWaitSec, 2*time.Second)),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}
	appLogger.Info(ctx, "Connected to NATS server", "url", nc.ConnectedUrl())

	s := &InvalidationSubscriber{
		nc:      nc,
		logger:  appLogger,
		subject: natsCfg.InvalidationSubject,
	}
	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		s.Close()
	}
	return s, cleanup, nil
}

// SubscribeInvalidations implements domain.EventSubscriber.
func (s *InvalidationSubscriber) SubscribeInvalidations(ctx context.Context, handler domain.InvalidationHandler) error {
	if s.nc == nil {
		return errors.New("NATS connection is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("already subscribed to %s", s.subject)
	}

	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		// Each message gets its own context; the subscription outlives any request.
		s.handleMsg(context.WithoutCancel(ctx), handler, msg)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to subscribe to invalidation subject", "subject", s.subject, "error", err.Error())
		return fmt.Errorf("failed to subscribe to NATS subject %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info(ctx, "Subscribed to invalidation events", "subject", s.subject)
	return nil
}

// handleMsg decodes one message and hands it to handler. Malformed messages
// and handler panics are logged and dropped.
func (s *InvalidationSubscriber) handleMsg(ctx context.Context, handler domain.InvalidationHandler, msg *nats.Msg) {
	var event domain.InvalidationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		metrics.ObserveInvalidationEvent("unknown", "malformed")
		s.logger.Warn(ctx, "Dropping malformed invalidation event", "subject", msg.Subject, "error", err.Error())
		return
	}
	if event.Kind == "" {
		event.Kind = kindFromSubject(msg.Subject)
	}
	if event.EventID != "" {
		ctx = context.WithValue(ctx, contextkeys.EventIDKey, event.EventID)
	}

	panicked := safego.Run(ctx, s.logger, "InvalidationHandler", func() {
		if err := handler.HandleInvalidation(ctx, event); err != nil {
			s.logger.Warn(ctx, "Invalidation event not applied", "subject", msg.Subject, "kind", string(event.Kind), "error", err.Error())
		}
	})
	if panicked {
		metrics.ObserveInvalidationEvent(string(event.Kind), "panicked")
	}
}

// kindFromSubject returns the part of subject after "invalidate.".
func kindFromSubject(subject string) domain.InvalidationKind {
	i := strings.LastIndex(subject, subjectMarker)
	if i < 0 {
		return ""
	}
	return domain.InvalidationKind(subject[i+len(subjectMarker):])
}

// Stop implements domain.EventSubscriber. It drops the subscription but keeps
// the connection open.
func (s *InvalidationSubscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("unsubscribe %s: %w", s.subject, err)
	}
	s.logger.Info(context.Background(), "Unsubscribed from invalidation events", "subject", s.subject)
	return nil
}

// Status reports the state of the NATS connection.
func (s *InvalidationSubscriber) Status() nats.Status {
	if s.nc == nil {
		return nats.DISCONNECTED
	}
	return s.nc.Status()
}

// Close drains and closes the NATS connection.
func (s *InvalidationSubscriber) Close() {
	if s.nc != nil && !s.nc.IsClosed() {
		s.logger.Info(context.Background(), "Draining NATS connection...")
		if err := s.nc.Drain(); err != nil {
			s.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
		} else {
			s.logger.Info(context.Background(), "NATS connection drained successfully.")
		}
	}
}
