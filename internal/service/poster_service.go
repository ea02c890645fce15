package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kivop-be/internal/domain"
	"kivop-be/internal/poster"
	"kivop-be/internal/repository"
	apperrors "kivop-be/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// List views served by ListOverviews
const (
	ViewCurrent  = "current"
	ViewArchived = "archived"
)

const defaultFetchConcurrency = 8

// PosterService runs lifecycle actions against stored positions and serves
// the derived campaign views.
type PosterService struct {
	repo             repository.PosterRepository
	cache            *CacheService
	logger           *zap.Logger
	now              func() time.Time
	fetchConcurrency int
}

func NewPosterService(repo repository.PosterRepository, cache *CacheService, logger *zap.Logger, fetchConcurrency int) *PosterService {
	if fetchConcurrency <= 0 {
		fetchConcurrency = defaultFetchConcurrency
	}
	return &PosterService{
		repo:             repo,
		cache:            cache,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		fetchConcurrency: fetchConcurrency,
	}
}

// SetClock replaces the time source
func (s *PosterService) SetClock(now func() time.Time) {
	s.now = now
}

// CreatePoster sets up a campaign; every position starts as toHang
func (s *PosterService) CreatePoster(ctx context.Context, req *domain.CreatePosterRequest) (*domain.PosterDetail, error) {
	if err := validateCreatePoster(req); err != nil {
		return nil, err
	}

	p := &domain.Poster{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}

	positions := make([]domain.PosterPosition, 0, len(req.Positions))
	for _, np := range req.Positions {
		users := np.ResponsibleUsers
		if users == nil {
			users = []string{}
		}
		positions = append(positions, domain.PosterPosition{
			ID:               uuid.NewString(),
			PosterID:         p.ID,
			Coordinates:      np.Coordinates,
			Status:           domain.StatusToHang,
			ExpiresAt:        np.ExpiresAt.UTC(),
			ResponsibleUsers: users,
		})
	}

	if err := s.repo.CreatePoster(ctx, p, positions); err != nil {
		return nil, apperrors.NewInternalError("Failed to create poster", err)
	}

	s.logger.Info("Poster created",
		zap.String("poster_id", p.ID),
		zap.Int("positions", len(positions)))

	return s.detail(*p, positions), nil
}

func validateCreatePoster(req *domain.CreatePosterRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("Poster name is required", map[string]interface{}{"field": "name"})
	}
	for i, np := range req.Positions {
		if np.ExpiresAt.IsZero() {
			return apperrors.NewValidationError("Every position needs a take-down date", map[string]interface{}{
				"field": fmt.Sprintf("positions[%d].expires_at", i),
			})
		}
	}
	return nil
}

// GetPoster returns a poster with its positions and summary
func (s *PosterService) GetPoster(ctx context.Context, posterID string) (*domain.PosterDetail, error) {
	p, positions, err := s.load(ctx, posterID)
	if err != nil {
		return nil, err
	}
	return s.detail(*p, positions), nil
}

// ListPositions returns the positions of a poster with their effective status
func (s *PosterService) ListPositions(ctx context.Context, posterID string) ([]domain.PositionView, error) {
	_, positions, err := s.load(ctx, posterID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]domain.PositionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, listView(pos, now))
	}
	return views, nil
}

// GetPosition returns a single position including its evidence photo
func (s *PosterService) GetPosition(ctx context.Context, positionID string) (*domain.PositionView, error) {
	pos, err := s.position(ctx, positionID)
	if err != nil {
		return nil, err
	}
	view := fullView(*pos, s.now())
	return &view, nil
}

// GetSummary returns the summary of one poster as of now
func (s *PosterService) GetSummary(ctx context.Context, posterID string) (*domain.PosterSummary, error) {
	_, positions, err := s.load(ctx, posterID)
	if err != nil {
		return nil, err
	}
	summary, issues := poster.Summarize(positions, s.now())
	s.logDataQuality(posterID, issues)
	return &summary, nil
}

// ListOverviews returns the current or archived list view
func (s *PosterService) ListOverviews(ctx context.Context, view string) ([]domain.PosterOverview, error) {
	if view == "" {
		view = ViewCurrent
	}
	if view != ViewCurrent && view != ViewArchived {
		return nil, apperrors.NewValidationError("Unknown view", map[string]interface{}{
			"view":    view,
			"allowed": []string{ViewCurrent, ViewArchived},
		})
	}
	return s.buildOverviews(ctx, view)
}

// buildOverviews fetches the positions of every poster concurrently and
// aggregates once all of them are in.
func (s *PosterService) buildOverviews(ctx context.Context, view string) ([]domain.PosterOverview, error) {
	posters, err := s.repo.ListPosters(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list posters", err)
	}

	positions := make([][]domain.PosterPosition, len(posters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, p := range posters {
		g.Go(func() error {
			list, err := s.positions(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("positions of poster %s: %w", p.ID, err)
			}
			positions[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewInternalError("Failed to load positions", err)
	}

	now := s.now()
	overviews := []domain.PosterOverview{}
	latest := make(map[string]time.Time)
	for i, p := range posters {
		ov, issues := poster.Overview(p, positions[i], now)
		s.logDataQuality(p.ID, issues)
		if string(ov.Classification) != view {
			continue
		}
		overviews = append(overviews, ov)
		latest[p.ID] = poster.LatestExpiry(positions[i])
	}

	if view == ViewArchived {
		poster.SortArchived(overviews, latest)
	} else {
		poster.SortCurrent(overviews)
	}
	return overviews, nil
}

// Hang hangs a position, or re-hangs one that was taken down
func (s *PosterService) Hang(ctx context.Context, positionID, actor string, req *domain.HangRequest) (*domain.PositionView, error) {
	return s.mutate(ctx, positionID, poster.ActionHang, func(pos domain.PosterPosition, now time.Time) (domain.PosterPosition, error) {
		return poster.Hang(pos, req.Image, req.Coordinates, actor, now)
	})
}

// TakeDown records the removal of a hanging position
func (s *PosterService) TakeDown(ctx context.Context, positionID, actor string, req *domain.EvidenceRequest) (*domain.PositionView, error) {
	return s.mutate(ctx, positionID, poster.ActionTakeDown, func(pos domain.PosterPosition, now time.Time) (domain.PosterPosition, error) {
		return poster.TakeDown(pos, req.Image, actor, now)
	})
}

// ReportDamage records that a hanging position was damaged
func (s *PosterService) ReportDamage(ctx context.Context, positionID, actor string, req *domain.EvidenceRequest) (*domain.PositionView, error) {
	return s.mutate(ctx, positionID, poster.ActionReportDamage, func(pos domain.PosterPosition, now time.Time) (domain.PosterPosition, error) {
		return poster.ReportDamage(pos, req.Image, now)
	})
}

type transition func(pos domain.PosterPosition, now time.Time) (domain.PosterPosition, error)

func (s *PosterService) mutate(ctx context.Context, positionID string, action poster.Action, apply transition) (*domain.PositionView, error) {
	token, locked, err := s.cache.TryPositionLock(ctx, positionID)
	switch {
	case err != nil:
		s.logger.Warn("Position lock unavailable, continuing without it",
			zap.String("position_id", positionID),
			zap.Error(err))
	case !locked:
		return nil, apperrors.NewConflictError("Another update of this position is in progress", nil, map[string]interface{}{
			"position_id": positionID,
		})
	default:
		defer s.cache.ReleasePositionLock(ctx, positionID, token)
	}

	current, err := s.position(ctx, positionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := apply(*current, now)
	if err != nil {
		return nil, transitionError(err)
	}

	if err := s.repo.UpdatePosition(ctx, next, current.Status); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, apperrors.NewConflictError("Position was changed by someone else, reload and try again", err, map[string]interface{}{
				"position_id": positionID,
			})
		}
		return nil, apperrors.NewInternalError("Failed to save position", err)
	}

	s.logger.Info("Position updated",
		zap.String("position_id", positionID),
		zap.String("poster_id", next.PosterID),
		zap.String("action", string(action)),
		zap.String("from", string(poster.EffectiveStatus(*current, now))),
		zap.String("to", string(next.Status)))
	s.invalidate(ctx, next.PosterID)

	view := fullView(next, now)
	return &view, nil
}

// transitionError maps lifecycle failures onto the API error taxonomy
func transitionError(err error) error {
	details := map[string]interface{}{}
	var te *poster.TransitionError
	if errors.As(err, &te) {
		details["action"] = te.Action
		details["position_id"] = te.PositionID
		details["status"] = te.From
	}

	switch {
	case errors.Is(err, poster.ErrMissingEvidence):
		details["field"] = "image"
		return apperrors.NewValidationError("An evidence photo is required", details)
	case errors.Is(err, poster.ErrMissingLocation):
		details["field"] = "coordinates"
		return apperrors.NewValidationError("Coordinates are required to hang this position", details)
	case errors.Is(err, poster.ErrInvalidTransition):
		msg := "Action is not allowed for this position"
		if te != nil {
			msg = fmt.Sprintf("Cannot %s a position that is %s", strings.ReplaceAll(string(te.Action), "_", " "), te.From)
		}
		return apperrors.NewConflictError(msg, err, details)
	}
	return apperrors.NewInternalError("Failed to apply action", err)
}

func (s *PosterService) load(ctx context.Context, posterID string) (*domain.Poster, []domain.PosterPosition, error) {
	p, err := s.repo.GetPoster(ctx, posterID)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("Failed to get poster", err)
	}
	if p == nil {
		return nil, nil, apperrors.NewNotFoundError("Poster not found")
	}
	positions, err := s.positions(ctx, posterID)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("Failed to get positions", err)
	}
	return p, positions, nil
}

// positions returns the stored positions of a poster without photos
func (s *PosterService) positions(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
	return s.cache.GetPositionsWithCache(ctx, posterID, s.repo.ListPositions)
}

func (s *PosterService) position(ctx context.Context, positionID string) (*domain.PosterPosition, error) {
	pos, err := s.repo.GetPosition(ctx, positionID)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to get position", err)
	}
	if pos == nil {
		return nil, apperrors.NewNotFoundError("Position not found")
	}
	return pos, nil
}

func (s *PosterService) detail(p domain.Poster, positions []domain.PosterPosition) *domain.PosterDetail {
	now := s.now()
	ov, issues := poster.Overview(p, positions, now)
	s.logDataQuality(p.ID, issues)

	views := make([]domain.PositionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, listView(pos, now))
	}
	return &domain.PosterDetail{
		Poster:         p,
		Positions:      views,
		Summary:        ov.Summary,
		Classification: ov.Classification,
	}
}

func (s *PosterService) invalidate(ctx context.Context, posterID string) {
	if err := s.cache.InvalidatePoster(ctx, posterID); err != nil {
		s.logger.Warn("Failed to invalidate poster caches",
			zap.String("poster_id", posterID),
			zap.Error(err))
	}
}

func (s *PosterService) logDataQuality(posterID string, issues []poster.DataQualityIssue) {
	for _, issue := range issues {
		s.logger.Warn("Position excluded from aggregation",
			zap.String("poster_id", posterID),
			zap.String("position_id", issue.PositionID),
			zap.String("reason", issue.Reason))
	}
}

// fullView includes the evidence photo
func fullView(pos domain.PosterPosition, now time.Time) domain.PositionView {
	allowed := poster.Allowed(pos, now)
	actions := make([]string, 0, len(allowed))
	for _, a := range allowed {
		actions = append(actions, string(a))
	}
	view := domain.PositionView{
		PosterPosition:  pos,
		EffectiveStatus: poster.EffectiveStatus(pos, now),
		AllowedActions:  actions,
	}
	view.HasImage = pos.HasImage || len(pos.Image) > 0
	return view
}

// listView leaves the photo out to keep list payloads small
func listView(pos domain.PosterPosition, now time.Time) domain.PositionView {
	view := fullView(pos, now)
	view.Image = nil
	return view
}
