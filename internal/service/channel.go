package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// maxVerificationAttempts caps token guesses per channel.
const maxVerificationAttempts = 5

// ChannelRepo is the store surface the channel service needs.
type ChannelRepo interface {
	Insert(ctx context.Context, c *model.Channel) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Channel, error)
	ListByUser(ctx context.Context, userID int64, kind string, verifiedOnly, includeDeleted bool) ([]*model.Channel, error)
	MarkVerified(ctx context.Context, id int64, token string) (bool, error)
	IncrementVerificationAttempts(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
}

// AddChannelInput is the request shape for registering a channel. UserID
// comes from the request path, not the body.
type AddChannelInput struct {
	UserID    int64             `json:"-"`
	Kind      model.ChannelKind `json:"channel_type" binding:"required"`
	Value     string            `json:"channel_value" binding:"required"`
	IsPrimary bool              `json:"is_primary"`
}

type ChannelService struct {
	repo   ChannelRepo
	logger *zap.Logger
}

func NewChannelService(repo ChannelRepo, logger *zap.Logger) *ChannelService {
	return &ChannelService{repo: repo, logger: logger}
}

// Add registers an unverified channel and issues its verification token.
// In-app channels need no external endpoint, so they start verified.
func (s *ChannelService) Add(ctx context.Context, in AddChannelInput) (*model.Channel, error) {
	if in.UserID <= 0 {
		return nil, &apperr.ValidationError{Field: "user_id", Reason: "must be a positive id"}
	}
	if !in.Kind.Valid() {
		return nil, &apperr.ValidationError{Field: "channel_type", Reason: fmt.Sprintf("unknown channel kind %q", in.Kind)}
	}
	if in.Value == "" {
		return nil, &apperr.ValidationError{Field: "channel_value", Reason: "must not be empty"}
	}

	c := &model.Channel{
		UserID:            in.UserID,
		Kind:              in.Kind,
		Value:             in.Value,
		IsPrimary:         in.IsPrimary,
		VerificationToken: uuid.NewString(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, err
	}

	if c.Kind == model.ChannelInApp {
		if _, err := s.repo.MarkVerified(ctx, c.ID, c.VerificationToken); err != nil {
			return nil, err
		}
		return s.repo.GetByID(ctx, c.ID, false)
	}

	s.logger.Info("Channel registered",
		zap.Int64("channel_id", c.ID),
		zap.Int64("user_id", c.UserID),
		zap.String("kind", string(c.Kind)),
	)
	return c, nil
}

// Verify confirms channel ownership with the token sent at registration.
// Verification is one-way: an already-verified channel rejects the call.
// Every call counts against the attempt budget, matching or not.
func (s *ChannelService) Verify(ctx context.Context, channelID int64, token string) (*model.Channel, error) {
	c, err := s.repo.GetByID(ctx, channelID, false)
	if err != nil {
		return nil, err
	}
	if c.IsVerified {
		return nil, &apperr.InvalidStateError{Entity: "channel", ID: channelID, State: "verified", Op: "verify"}
	}
	if c.VerificationAttempts >= maxVerificationAttempts {
		return nil, &apperr.InvalidStateError{Entity: "channel", ID: channelID, State: "locked", Op: "verify"}
	}

	if err := s.repo.IncrementVerificationAttempts(ctx, channelID); err != nil {
		return nil, err
	}

	ok, err := s.repo.MarkVerified(ctx, channelID, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("Channel verification rejected",
			zap.Int64("channel_id", channelID),
			zap.Int("attempts", c.VerificationAttempts+1),
		)
		return nil, &apperr.ValidationError{Field: "token", Reason: "verification token does not match"}
	}

	s.logger.Info("Channel verified", zap.Int64("channel_id", channelID))
	return s.repo.GetByID(ctx, channelID, false)
}

func (s *ChannelService) Get(ctx context.Context, id int64, includeDeleted bool) (*model.Channel, error) {
	return s.repo.GetByID(ctx, id, includeDeleted)
}

// List returns a user's channels, primary first.
func (s *ChannelService) List(ctx context.Context, userID int64, kind string, verifiedOnly, includeDeleted bool) ([]*model.Channel, error) {
	if kind != "" && !model.ChannelKind(kind).Valid() {
		return nil, &apperr.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown channel kind %q", kind)}
	}
	return s.repo.ListByUser(ctx, userID, kind, verifiedOnly, includeDeleted)
}

// Deactivate switches a channel off without deleting its history. Pending
// deliveries already created for it still run; new dispatches skip it.
func (s *ChannelService) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Channel deactivated", zap.Int64("channel_id", id))
	return nil
}
