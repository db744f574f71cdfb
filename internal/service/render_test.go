package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelEmail,
		Subject: "Hello {{user_name}}",
		Content: "Welcome {{user_name}}! Your code is {{code}}.",
	}

	got, err := Render(tmpl, map[string]string{"user_name": "Ana", "code": "1234"})
	require.NoError(t, err)
	require.Equal(t, "Hello Ana", got.Subject)
	require.Equal(t, "Welcome Ana! Your code is 1234.", got.Body)
}

func TestRenderToleratesPlaceholderWhitespace(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelSMS,
		Content: "Hi {{ user_name }}",
	}

	got, err := Render(tmpl, map[string]string{"user_name": "Ana"})
	require.NoError(t, err)
	require.Equal(t, "Hi Ana", got.Body)
}

func TestRenderFailsOnMissingVariable(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelEmail,
		Content: "Welcome {{user_name}}!",
	}

	_, err := Render(tmpl, map[string]string{})
	var missing *apperr.MissingVariableError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "user_name", missing.Name)
}

func TestRenderSubjectOnlyForEmail(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelSMS,
		Subject: "ignored {{missing_var}}",
		Content: "Your code is {{code}}",
	}

	// A non-email kind never renders the subject, so its placeholders are
	// not required.
	got, err := Render(tmpl, map[string]string{"code": "9876"})
	require.NoError(t, err)
	require.Empty(t, got.Subject)
	require.Equal(t, "Your code is 9876", got.Body)
}

func TestRenderExtraVariablesIgnored(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelPush,
		Content: "Ping",
	}

	got, err := Render(tmpl, map[string]string{"unused": "x"})
	require.NoError(t, err)
	require.Equal(t, "Ping", got.Body)
}

func TestRenderLiteralBracesOutsidePlaceholders(t *testing.T) {
	tmpl := &model.Template{
		Kind:    model.ChannelWebhook,
		Content: `{"event": "{{kind}}"}`,
	}

	got, err := Render(tmpl, map[string]string{"kind": "signup"})
	require.NoError(t, err)
	require.Equal(t, `{"event": "signup"}`, got.Body)
}
