package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

func TestAddChannelIssuesVerificationToken(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)
	require.False(t, c.IsVerified)
	require.NotEmpty(t, c.VerificationToken)
	require.True(t, c.IsActive)
}

func TestAddInAppChannelStartsVerified(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelInApp, Value: "inbox",
	})
	require.NoError(t, err)
	require.True(t, c.IsVerified)
}

func TestVerifyChannel(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)

	verified, err := svc.Verify(context.Background(), c.ID, c.VerificationToken)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
	require.NotNil(t, verified.VerifiedAt)

	// Verification is one-way.
	var stateErr *apperr.InvalidStateError
	_, err = svc.Verify(context.Background(), c.ID, c.VerificationToken)
	require.ErrorAs(t, err, &stateErr)
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)

	var validationErr *apperr.ValidationError
	_, err = svc.Verify(context.Background(), c.ID, "wrong")
	require.ErrorAs(t, err, &validationErr)

	// The failed call still counted against the budget.
	stored, err := svc.Get(context.Background(), c.ID, false)
	require.NoError(t, err)
	require.Equal(t, 1, stored.VerificationAttempts)
}

func TestVerifyLocksAfterTooManyAttempts(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)

	for i := 0; i < maxVerificationAttempts; i++ {
		_, err = svc.Verify(context.Background(), c.ID, "wrong")
		require.Error(t, err)
	}

	// Even the right token is rejected once the channel is locked.
	var stateErr *apperr.InvalidStateError
	_, err = svc.Verify(context.Background(), c.ID, c.VerificationToken)
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "locked", stateErr.State)
}

func TestPrimaryChannelDemotesPrevious(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	first, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "old@example.com", IsPrimary: true,
	})
	require.NoError(t, err)

	second, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "new@example.com", IsPrimary: true,
	})
	require.NoError(t, err)
	require.True(t, second.IsPrimary)

	stored, err := svc.Get(context.Background(), first.ID, false)
	require.NoError(t, err)
	require.False(t, stored.IsPrimary)
}

func TestListChannelsFilters(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	email, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelSMS, Value: "+358401234567",
	})
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), email.ID, email.VerificationToken)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), 1, "", false, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	verified, err := svc.List(context.Background(), 1, "", true, false)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	require.Equal(t, model.ChannelEmail, verified[0].Kind)

	sms, err := svc.List(context.Background(), 1, "sms", false, false)
	require.NoError(t, err)
	require.Len(t, sms, 1)
}

func TestDeactivateChannel(t *testing.T) {
	repo := newMemChannelRepo()
	svc := NewChannelService(repo, zap.NewNop())

	c, err := svc.Add(context.Background(), AddChannelInput{
		UserID: 1, Kind: model.ChannelEmail, Value: "ana@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), c.ID))
	stored, err := svc.Get(context.Background(), c.ID, false)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.False(t, stored.Deliverable())
}

func TestAddChannelValidation(t *testing.T) {
	svc := NewChannelService(newMemChannelRepo(), zap.NewNop())

	var validationErr *apperr.ValidationError
	_, err := svc.Add(context.Background(), AddChannelInput{UserID: 1, Kind: "fax", Value: "x"})
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.Add(context.Background(), AddChannelInput{UserID: 1, Kind: model.ChannelEmail})
	require.ErrorAs(t, err, &validationErr)
}
