package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/cachekeys"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

// ErrEmptyUserID is returned when a profile operation gets no user id.
var ErrEmptyUserID = errors.New("user id is empty")

// ProfileService serves profiles and per-user collections through the
// interaction cache. Every cached value is tagged with the ids of the users it
// was derived from so that a change to one user invalidates all of them.
type ProfileService struct {
	logger         domain.Logger
	configProvider config.Provider
	cache          domain.InteractionCache
	api            domain.ProfileAPI
	loads          singleflight.Group
}

// NewProfileService creates a new ProfileService.
func NewProfileService(logger domain.Logger, configProvider config.Provider, cache domain.InteractionCache, api domain.ProfileAPI) *ProfileService {
	if logger == nil {
		panic("logger is nil in NewProfileService")
	}
	if configProvider == nil {
		panic("config provider is nil in NewProfileService")
	}
	if cache == nil {
		panic("cache is nil in NewProfileService")
	}
	if api == nil {
		panic("profile API is nil in NewProfileService")
	}
	return &ProfileService{
		logger:         logger,
		configProvider: configProvider,
		cache:          cache,
		api:            api,
	}
}

func (s *ProfileService) ttl(seconds int) time.Duration {
	cfg := s.configProvider.Get().Cache
	return config.TTL(seconds, config.TTL(cfg.DefaultTTLSeconds, 0))
}

func userContext(ctx context.Context, userID string) context.Context {
	if _, ok := ctx.Value(contextkeys.UserIDKey).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.UserIDKey, userID)
}

// Profile returns a user's profile.
func (s *ProfileService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx = userContext(ctx, userID)
	return cachedLoad(ctx, s.cache, &s.loads, cachekeys.User(userID),
		s.ttl(s.configProvider.Get().Cache.ProfileTTLSeconds),
		tagged[*domain.Profile](userID),
		func(ctx context.Context) (*domain.Profile, error) {
			return s.api.FetchProfile(ctx, userID)
		},
	)
}

// Cameras returns the cameras a user owns.
func (s *ProfileService) Cameras(ctx context.Context, userID string) ([]domain.Camera, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx = userContext(ctx, userID)
	return cachedLoad(ctx, s.cache, &s.loads, cachekeys.Cameras(userID),
		s.ttl(s.configProvider.Get().Cache.CollectionTTLSeconds),
		tagged[[]domain.Camera](userID),
		func(ctx context.Context) ([]domain.Camera, error) {
			return s.api.FetchCameras(ctx, userID)
		},
	)
}

// Discussions returns the discussions a user started.
func (s *ProfileService) Discussions(ctx context.Context, userID string) ([]domain.Discussion, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx = userContext(ctx, userID)
	return cachedLoad(ctx, s.cache, &s.loads, cachekeys.Discussions(userID),
		s.ttl(s.configProvider.Get().Cache.CollectionTTLSeconds),
		tagged[[]domain.Discussion](userID),
		func(ctx context.Context) ([]domain.Discussion, error) {
			return s.api.FetchDiscussions(ctx, userID)
		},
	)
}

// Feed returns a user's home feed. The entry also depends on every author in it.
func (s *ProfileService) Feed(ctx context.Context, userID string) ([]domain.FeedItem, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx = userContext(ctx, userID)
	return cachedLoad(ctx, s.cache, &s.loads, cachekeys.Feed(userID),
		s.ttl(s.configProvider.Get().Cache.FeedTTLSeconds),
		func(items []domain.FeedItem) []string {
			ids := []string{userID}
			for _, it := range items {
				ids = append(ids, it.AuthorID)
			}
			return ids
		},
		func(ctx context.Context) ([]domain.FeedItem, error) {
			return s.api.FetchFeed(ctx, userID)
		},
	)
}

// Following returns the profiles a user follows. The entry also depends on each of them.
func (s *ProfileService) Following(ctx context.Context, userID string) ([]domain.Profile, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx = userContext(ctx, userID)
	return cachedLoad(ctx, s.cache, &s.loads, cachekeys.Following(userID),
		s.ttl(s.configProvider.Get().Cache.FollowingTTLSeconds),
		func(profiles []domain.Profile) []string {
			ids := []string{userID}
			for _, p := range profiles {
				ids = append(ids, p.ID)
			}
			return ids
		},
		func(ctx context.Context) ([]domain.Profile, error) {
			return s.api.FetchFollowing(ctx, userID)
		},
	)
}

// UpdateProfile edits the viewer's own profile. Once the server confirms,
// every entry derived from the user is invalidated and the new profile is cached.
func (s *ProfileService) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.Profile, error) {
	viewer, ok := domain.ViewerFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	updated, err := s.api.UpdateProfile(ctx, viewer.UserID, patch)
	if err != nil {
		s.logger.Warn(ctx, "Profile update failed", "error", err.Error())
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("update profile %s: empty response", viewer.UserID)
	}

	s.InvalidateUser(ctx, viewer.UserID, "profile_updated")
	s.cache.Set(ctx, cachekeys.User(viewer.UserID), updated,
		s.ttl(s.configProvider.Get().Cache.ProfileTTLSeconds), viewer.UserID)
	return updated, nil
}

// Follow makes the viewer follow targetID.
func (s *ProfileService) Follow(ctx context.Context, targetID string) error {
	return s.setFollowing(ctx, targetID, true)
}

// Unfollow makes the viewer stop following targetID.
func (s *ProfileService) Unfollow(ctx context.Context, targetID string) error {
	return s.setFollowing(ctx, targetID, false)
}

func (s *ProfileService) setFollowing(ctx context.Context, targetID string, follow bool) error {
	viewer, ok := domain.ViewerFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if targetID == "" {
		return ErrEmptyUserID
	}

	var err error
	if follow {
		err = s.api.Follow(ctx, viewer.UserID, targetID)
	} else {
		err = s.api.Unfollow(ctx, viewer.UserID, targetID)
	}
	if err != nil {
		s.logger.Warn(ctx, "Follow change failed", "target_id", targetID, "follow", follow, "error", err.Error())
		return err
	}

	// Counts on both profiles and the viewer's following list and feed change.
	keys := []string{
		cachekeys.Following(viewer.UserID),
		cachekeys.Feed(viewer.UserID),
		cachekeys.User(viewer.UserID),
		cachekeys.User(targetID),
	}
	for _, key := range keys {
		s.cache.Clear(ctx, key)
	}
	s.logger.Debug(ctx, "Follow changed", "target_id", targetID, "follow", follow)
	return nil
}

// InvalidateUser drops every cached entry derived from userID.
func (s *ProfileService) InvalidateUser(ctx context.Context, userID, reason string) int {
	n := s.cache.InvalidateEntity(ctx, userID)
	s.logger.Debug(ctx, "User entries invalidated", "user_id", userID, "entries", n, "reason", reason)
	return n
}
