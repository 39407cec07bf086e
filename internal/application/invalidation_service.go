package application

import (
	"context"
	"fmt"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

// InvalidationService applies invalidation events published when the
// authoritative copy of a user or thread changes elsewhere.
type InvalidationService struct {
	logger   domain.Logger
	cache    domain.InteractionCache
	profiles *ProfileService
	comments *CommentService
}

// NewInvalidationService creates a new InvalidationService.
func NewInvalidationService(logger domain.Logger, cache domain.InteractionCache, profiles *ProfileService, comments *CommentService) *InvalidationService {
	if logger == nil {
		panic("logger is nil in NewInvalidationService")
	}
	if cache == nil {
		panic("cache is nil in NewInvalidationService")
	}
	if profiles == nil {
		panic("profile service is nil in NewInvalidationService")
	}
	if comments == nil {
		panic("comment service is nil in NewInvalidationService")
	}
	return &InvalidationService{
		logger:   logger,
		cache:    cache,
		profiles: profiles,
		comments: comments,
	}
}

var _ domain.InvalidationHandler = (*InvalidationService)(nil)

// HandleInvalidation implements domain.InvalidationHandler.
func (s *InvalidationService) HandleInvalidation(ctx context.Context, event domain.InvalidationEvent) error {
	if event.EventID != "" {
		ctx = context.WithValue(ctx, contextkeys.EventIDKey, event.EventID)
	}

	err := s.apply(ctx, event)
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
		s.logger.Warn(ctx, "Invalidation event rejected", "kind", string(event.Kind), "error", err.Error())
	}
	metrics.ObserveInvalidationEvent(string(event.Kind), outcome)
	return err
}

func (s *InvalidationService) apply(ctx context.Context, event domain.InvalidationEvent) error {
	switch event.Kind {
	case domain.InvalidateUser:
		if event.UserID == "" {
			return fmt.Errorf("%s event without user_id", event.Kind)
		}
		n := s.profiles.InvalidateUser(ctx, event.UserID, string(event.Kind))
		s.logger.Info(ctx, "User invalidated by event", "user_id", event.UserID, "entries", n)
		return nil

	case domain.InvalidateThread:
		if event.Thread == nil {
			return fmt.Errorf("%s event without thread", event.Kind)
		}
		ref := *event.Thread
		if err := validateRef(ref); err != nil {
			return err
		}
		// Open forests go too; the next read refetches the server copy.
		s.comments.Discard(ctx, ref)
		s.logger.Info(ctx, "Thread invalidated by event", "thread", ref.String(), "actor_id", event.ActorID)
		return nil

	case domain.InvalidateAll:
		s.cache.ClearAll(ctx)
		for _, ref := range s.comments.OpenThreads() {
			s.comments.CloseThread(ctx, ref)
		}
		return nil
	}
	return fmt.Errorf("unknown invalidation kind %q", event.Kind)
}
