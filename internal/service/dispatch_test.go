package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

type dispatchFixture struct {
	svc       *DispatchService
	templates *memTemplateRepo
	channels  *memChannelRepo
	prefs     *memPreferenceRepo
	delivery  *memDeliveryRepo
	store     *memNotificationRepo
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	templates := newMemTemplateRepo()
	channels := newMemChannelRepo()
	prefs := newMemPreferenceRepo()
	delivery := newMemDeliveryRepo()
	store := newMemNotificationRepo(delivery)

	prefSvc := NewPreferenceService(prefs, nil, zap.NewNop())
	svc := NewDispatchService(store, templates, channels, prefSvc, zap.NewNop())
	return &dispatchFixture{svc: svc, templates: templates, channels: channels, prefs: prefs, delivery: delivery, store: store}
}

func (f *dispatchFixture) addTemplate(t *testing.T, tmpl *model.Template) *model.Template {
	t.Helper()
	if tmpl.Priority == "" {
		tmpl.Priority = model.PriorityNormal
	}
	if tmpl.RetryPolicy.MaxRetries == 0 {
		tmpl.RetryPolicy = model.DefaultRetryPolicy()
	}
	tmpl.IsActive = true
	require.NoError(t, f.templates.Insert(context.Background(), tmpl))
	return tmpl
}

func (f *dispatchFixture) addVerifiedChannel(t *testing.T, userID int64, kind model.ChannelKind, value string) *model.Channel {
	t.Helper()
	c := &model.Channel{UserID: userID, Kind: kind, Value: value, VerificationToken: "tok"}
	require.NoError(t, f.channels.Insert(context.Background(), c))
	ok, err := f.channels.MarkVerified(context.Background(), c.ID, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	c.IsVerified = true
	return c
}

func TestSendFansOutToVerifiedChannels(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{
		Name:    "welcome",
		Kind:    model.ChannelEmail,
		Subject: "Welcome {{user_name}}",
		Content: "Welcome {{user_name}}!",
	})
	f.addVerifiedChannel(t, 1, model.ChannelEmail, "ana@example.com")
	f.addVerifiedChannel(t, 1, model.ChannelPush, "push-token-1")

	// Unverified channels never receive attempts.
	unverified := &model.Channel{UserID: 1, Kind: model.ChannelSMS, Value: "+358401234567", VerificationToken: "tok"}
	require.NoError(t, f.channels.Insert(context.Background(), unverified))

	result, err := f.svc.Send(context.Background(), SendInput{
		UserID:     1,
		TemplateID: tmpl.ID,
		Variables:  map[string]string{"user_name": "Ana"},
	})
	require.NoError(t, err)
	require.Equal(t, "Welcome Ana!", result.Notification.Message)
	require.Equal(t, "Welcome Ana", result.Notification.Title)
	require.Len(t, result.Attempts, 2)
	for _, a := range result.Attempts {
		require.Equal(t, model.DeliveryPending, a.Status)
		require.Equal(t, result.Notification.ID, a.NotificationID)
		require.Equal(t, tmpl.RetryPolicy.MaxRetries, a.MaxRetries)
	}
}

func TestSendSkipsGatedChannelsSilently(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "alert", Kind: model.ChannelEmail, Content: "Alert!"})
	f.addVerifiedChannel(t, 1, model.ChannelEmail, "ana@example.com")
	f.addVerifiedChannel(t, 1, model.ChannelSMS, "+358401234567")

	f.prefs.prefs[1] = model.DefaultPreference(1)
	f.prefs.prefs[1].SMSEnabled = false

	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)
	require.Len(t, result.Attempts, 1)
	require.Equal(t, model.ChannelEmail, result.Attempts[0].ChannelKind)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, SkipDisabled, result.Skipped[0].Reason)
}

func TestSendWithNoChannelsStillStoresNotification(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})

	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)
	require.NotZero(t, result.Notification.ID)
	require.Empty(t, result.Attempts)

	stored, err := f.svc.Get(context.Background(), 1, result.Notification.ID, false)
	require.NoError(t, err)
	require.Equal(t, "Hi", stored.Message)
}

func TestSendContentOverrideBypassesRendering(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hello {{user_name}}"})

	// No variables supplied: the override makes rendering unnecessary.
	result, err := f.svc.Send(context.Background(), SendInput{
		UserID:     1,
		TemplateID: tmpl.ID,
		Title:      "Custom title",
		Message:    "Custom body",
	})
	require.NoError(t, err)
	require.Equal(t, "Custom title", result.Notification.Title)
	require.Equal(t, "Custom body", result.Notification.Message)
}

func TestSendFailsOnMissingVariable(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hello {{user_name}}"})

	var missing *apperr.MissingVariableError
	_, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.ErrorAs(t, err, &missing)
}

func TestSendRejectsInactiveTemplate(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "old", Kind: model.ChannelEmail, Content: "Hi"})
	f.templates.templates[tmpl.ID].IsActive = false

	var stateErr *apperr.InvalidStateError
	_, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.ErrorAs(t, err, &stateErr)
}

func TestSendByTemplateName(t *testing.T) {
	f := newDispatchFixture(t)
	f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})

	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateName: "welcome"})
	require.NoError(t, err)
	require.Equal(t, "welcome", result.Notification.Type)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})
	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)
	id := result.Notification.ID

	n, err := f.svc.MarkRead(context.Background(), 1, id)
	require.NoError(t, err)
	require.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	firstReadAt := *n.ReadAt

	// A second read keeps the original timestamp.
	n, err = f.svc.MarkRead(context.Background(), 1, id)
	require.NoError(t, err)
	require.True(t, n.IsRead)
	require.Equal(t, firstReadAt, *n.ReadAt)
}

func TestMarkReadRejectsForeignNotification(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})
	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)

	var forbidden *apperr.ForbiddenError
	_, err = f.svc.MarkRead(context.Background(), 2, result.Notification.ID)
	require.ErrorAs(t, err, &forbidden)
}

func TestSoftDeleteKeepsRowReadable(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})
	result, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)
	id := result.Notification.ID

	require.NoError(t, f.svc.Delete(context.Background(), 1, id))

	// Default reads exclude the row.
	var notFound *apperr.NotFoundError
	_, err = f.svc.Get(context.Background(), 1, id, false)
	require.ErrorAs(t, err, &notFound)

	// includeDeleted surfaces it again.
	n, err := f.svc.Get(context.Background(), 1, id, true)
	require.NoError(t, err)
	require.True(t, n.IsDeleted)
	require.NotNil(t, n.DeletedAt)
}

func TestListUnreadOnly(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "welcome", Kind: model.ChannelEmail, Content: "Hi"})

	first, err := f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), SendInput{UserID: 1, TemplateID: tmpl.ID})
	require.NoError(t, err)

	_, err = f.svc.MarkRead(context.Background(), 1, first.Notification.ID)
	require.NoError(t, err)

	items, total, err := f.svc.List(context.Background(), 1, true, false, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.False(t, items[0].IsRead)
}

func TestSendStampsBatchAndPayload(t *testing.T) {
	f := newDispatchFixture(t)
	tmpl := f.addTemplate(t, &model.Template{Name: "campaign", Kind: model.ChannelEmail, Content: "Hi"})

	batchID := int64(9)
	expires := time.Now().Add(24 * time.Hour)
	result, err := f.svc.Send(context.Background(), SendInput{
		UserID:       1,
		TemplateID:   tmpl.ID,
		BatchID:      &batchID,
		DataPayload:  []byte(`{"order_id":42}`),
		ExpiresAt:    &expires,
		SourceSystem: "billing",
	})
	require.NoError(t, err)
	require.Equal(t, &batchID, result.Notification.BatchID)
	require.JSONEq(t, `{"order_id":42}`, string(result.Notification.DataPayload))
	require.Equal(t, "billing", result.Notification.SourceSystem)
}
