package service

import (
	"regexp"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// RenderedContent is template content with all placeholders substituted.
// Subject is only set for channel kinds that carry one (email).
type RenderedContent struct {
	Subject string
	Body    string
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes every {{name}} placeholder in the template with the
// matching variable. A placeholder with no matching variable fails with
// MissingVariableError rather than leaking the literal token into outbound
// copy.
func Render(t *model.Template, variables map[string]string) (RenderedContent, error) {
	body, err := substitute(t.Content, variables)
	if err != nil {
		return RenderedContent{}, err
	}

	out := RenderedContent{Body: body}
	if t.Kind.SupportsSubject() && t.Subject != "" {
		subject, err := substitute(t.Subject, variables)
		if err != nil {
			return RenderedContent{}, err
		}
		out.Subject = subject
	}
	return out, nil
}

func substitute(content string, variables map[string]string) (string, error) {
	var missing string
	result := placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := variables[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return value
	})
	if missing != "" {
		return "", &apperr.MissingVariableError{Name: missing}
	}
	return result, nil
}
