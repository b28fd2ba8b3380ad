package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/config"
	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// ValidationError marks input the caller can fix. Handlers map it to 400
// (404 when Code says the referenced entity is missing); everything else is
// a 500.
type ValidationError struct {
	Field   string
	Message string
	Code    string
}

const ValidationCodeNotFound = "not_found"

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RecordImpressionInput is one candidate ledger entry as reported by a
// client. DwellMS is how long the video was actually on screen.
type RecordImpressionInput struct {
	UserID       uuid.UUID
	VideoID      uuid.UUID
	SessionID    uuid.UUID
	Position     int
	Source       string
	ModelVersion string
	DwellMS      int
}

// RecordWatchInput is one watch outcome. WatchDuration is in seconds.
// ImpressionID is optional; clients that lost the impression id still get
// their watch stored.
type RecordWatchInput struct {
	UserID        uuid.UUID
	VideoID       uuid.UUID
	WatchDuration int
	Completed     bool
	ImpressionID  *uuid.UUID
}

// ImpressionWithOutcome pairs a ledger row with its watch event, when one
// was reported.
type ImpressionWithOutcome struct {
	Impression *types.Impression `json:"impression"`
	Watch      *types.WatchEvent `json:"watch,omitempty"`
}

type ImpressionService interface {
	RecordImpression(ctx context.Context, input RecordImpressionInput) (*types.Impression, error)
	RecordWatch(ctx context.Context, input RecordWatchInput) (*types.WatchEvent, error)
	SeenVideoIDs(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID) ([]uuid.UUID, error)
	UserImpressions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]ImpressionWithOutcome, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type impressionService struct {
	log            *logger.Logger
	impressionRepo repos.ImpressionRepo
	watchRepo      repos.WatchEventRepo
	videoRepo      repos.VideoRepo
	cfg            config.LedgerConfig
	seenWindow     time.Duration
}

func NewImpressionService(
	log *logger.Logger,
	impressionRepo repos.ImpressionRepo,
	watchRepo repos.WatchEventRepo,
	videoRepo repos.VideoRepo,
	cfg config.LedgerConfig,
	feedCfg config.FeedConfig,
) ImpressionService {
	return &impressionService{
		log:            log.With("service", "ImpressionService"),
		impressionRepo: impressionRepo,
		watchRepo:      watchRepo,
		videoRepo:      videoRepo,
		cfg:            cfg,
		seenWindow:     time.Duration(feedCfg.SeenWindowHours) * time.Hour,
	}
}

// RecordImpression appends a ledger row once the dwell threshold is met.
// The threshold is enforced here, never trusted to clients alone: a row
// below it is rejected outright.
func (s *impressionService) RecordImpression(ctx context.Context, input RecordImpressionInput) (*types.Impression, error) {
	if input.UserID == uuid.Nil {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	if input.VideoID == uuid.Nil {
		return nil, &ValidationError{Field: "video_id", Message: "required"}
	}
	if input.SessionID == uuid.Nil {
		return nil, &ValidationError{Field: "session_id", Message: "required"}
	}
	if input.Position < 0 {
		return nil, &ValidationError{Field: "position", Message: "must be >= 0"}
	}
	if !types.ValidImpressionSource(input.Source) {
		return nil, &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", input.Source)}
	}
	if input.DwellMS < s.cfg.DwellThresholdMS {
		return nil, &ValidationError{
			Field:   "dwell_ms",
			Message: fmt.Sprintf("below threshold: got=%d need>=%d", input.DwellMS, s.cfg.DwellThresholdMS),
		}
	}

	video, err := s.videoRepo.GetByID(ctx, nil, input.VideoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "video_id", Message: "video not found", Code: ValidationCodeNotFound}
		}
		return nil, err
	}
	if video.Status != types.VideoStatusActive {
		return nil, &ValidationError{Field: "video_id", Message: "video is not active"}
	}

	impression := &types.Impression{
		UserID:       input.UserID,
		VideoID:      input.VideoID,
		SessionID:    input.SessionID,
		Position:     input.Position,
		Source:       input.Source,
		ModelVersion: input.ModelVersion,
		ShownAt:      time.Now().UTC(),
	}
	created, err := s.impressionRepo.Create(ctx, nil, impression)
	if err != nil {
		return nil, err
	}
	s.log.Debug("impression recorded",
		"user_id", input.UserID.String(),
		"session_id", input.SessionID.String(),
		"video_id", input.VideoID.String(),
		"source", input.Source,
		"position", input.Position,
	)
	return created, nil
}

// RecordWatch stores a watch outcome. A missing or mismatched impression
// reference is a data-quality problem worth logging but never a reason to
// throw the watch signal away; the reference is dropped and the event kept.
func (s *impressionService) RecordWatch(ctx context.Context, input RecordWatchInput) (*types.WatchEvent, error) {
	if input.UserID == uuid.Nil {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	if input.VideoID == uuid.Nil {
		return nil, &ValidationError{Field: "video_id", Message: "required"}
	}
	if input.WatchDuration < 0 {
		return nil, &ValidationError{Field: "watch_duration", Message: "must be >= 0"}
	}

	impressionRef := input.ImpressionID
	if impressionRef != nil {
		impression, err := s.impressionRepo.GetByID(ctx, nil, *impressionRef)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.log.Warn("watch references unknown impression, storing without reference",
				"user_id", input.UserID.String(),
				"impression_id", impressionRef.String(),
			)
			impressionRef = nil
		case err != nil:
			return nil, err
		case impression.UserID != input.UserID || impression.VideoID != input.VideoID:
			s.log.Warn("watch references mismatched impression, storing without reference",
				"user_id", input.UserID.String(),
				"impression_id", impressionRef.String(),
				"impression_video_id", impression.VideoID.String(),
				"watch_video_id", input.VideoID.String(),
			)
			impressionRef = nil
		}
	}

	event := &types.WatchEvent{
		UserID:        input.UserID,
		VideoID:       input.VideoID,
		WatchDuration: input.WatchDuration,
		Completed:     input.Completed,
		ImpressionID:  impressionRef,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.watchRepo.Create(ctx, nil, event)
	if err != nil {
		return nil, err
	}

	// The view counter is a display convenience; a failed bump never fails
	// the watch.
	if err := s.videoRepo.IncrementViews(ctx, nil, input.VideoID); err != nil {
		s.log.Warn("failed to increment view count",
			"video_id", input.VideoID.String(),
			"error", err,
		)
	}
	return created, nil
}

func (s *impressionService) SeenVideoIDs(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID) ([]uuid.UUID, error) {
	since := time.Now().UTC().Add(-s.seenWindow)
	return s.impressionRepo.SeenVideoIDs(ctx, nil, userID, sessionID, since)
}

func (s *impressionService) UserImpressions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]ImpressionWithOutcome, error) {
	impressions, err := s.impressionRepo.ListByUser(ctx, nil, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(impressions) == 0 {
		return []ImpressionWithOutcome{}, nil
	}

	ids := make([]uuid.UUID, 0, len(impressions))
	for _, impression := range impressions {
		ids = append(ids, impression.ID)
	}
	watches, err := s.watchRepo.GetByImpressionIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	watchByImpression := make(map[uuid.UUID]*types.WatchEvent, len(watches))
	for _, watch := range watches {
		if watch.ImpressionID != nil {
			watchByImpression[*watch.ImpressionID] = watch
		}
	}

	out := make([]ImpressionWithOutcome, 0, len(impressions))
	for _, impression := range impressions {
		out = append(out, ImpressionWithOutcome{
			Impression: impression,
			Watch:      watchByImpression[impression.ID],
		})
	}
	return out, nil
}

// PurgeExpired enforces the ledger retention window. Watch events age out
// on the same schedule as the impressions they reference.
func (s *impressionService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	removedImpressions, err := s.impressionRepo.DeleteOlderThan(ctx, nil, cutoff, 1000)
	if err != nil {
		return removedImpressions, err
	}
	removedWatches, err := s.watchRepo.DeleteOlderThan(ctx, nil, cutoff, 1000)
	if err != nil {
		return removedImpressions + removedWatches, err
	}

	total := removedImpressions + removedWatches
	if total > 0 {
		s.log.Info("ledger retention purge complete",
			"impressions_removed", removedImpressions,
			"watch_events_removed", removedWatches,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return total, nil
}
