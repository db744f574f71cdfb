package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// TemplateRepo is the store surface the template service needs.
type TemplateRepo interface {
	Insert(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Template, error)
	GetByName(ctx context.Context, name string) (*model.Template, error)
	ListActive(ctx context.Context, kind string, limit, offset int) ([]*model.Template, int, error)
}

// CreateTemplateInput is the request shape for registering a template.
type CreateTemplateInput struct {
	Name        string             `json:"template_name" binding:"required"`
	Kind        model.ChannelKind  `json:"template_type" binding:"required"`
	Subject     string             `json:"subject"`
	Content     string             `json:"content" binding:"required"`
	Variables   []string           `json:"variables"`
	Priority    model.Priority     `json:"priority"`
	RetryPolicy *model.RetryPolicy `json:"retry_policy"`
}

type TemplateService struct {
	repo   TemplateRepo
	logger *zap.Logger
}

func NewTemplateService(repo TemplateRepo, logger *zap.Logger) *TemplateService {
	return &TemplateService{repo: repo, logger: logger}
}

// Create registers a template. Priority defaults to normal, the retry policy
// to the standard three-attempt schedule.
func (s *TemplateService) Create(ctx context.Context, in CreateTemplateInput) (*model.Template, error) {
	if in.Name == "" {
		return nil, &apperr.ValidationError{Field: "template_name", Reason: "must not be empty"}
	}
	if !in.Kind.Valid() {
		return nil, &apperr.ValidationError{Field: "template_type", Reason: fmt.Sprintf("unknown channel kind %q", in.Kind)}
	}
	if in.Content == "" {
		return nil, &apperr.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if in.Subject != "" && !in.Kind.SupportsSubject() {
		return nil, &apperr.ValidationError{Field: "subject", Reason: fmt.Sprintf("%s templates do not carry a subject", in.Kind)}
	}

	priority := in.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, &apperr.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", priority)}
	}

	policy := model.DefaultRetryPolicy()
	if in.RetryPolicy != nil {
		if in.RetryPolicy.MaxRetries < 0 {
			return nil, &apperr.ValidationError{Field: "retry_policy.max_retries", Reason: "must not be negative"}
		}
		policy = *in.RetryPolicy
	}

	t := &model.Template{
		Name:        in.Name,
		Kind:        in.Kind,
		Subject:     in.Subject,
		Content:     in.Content,
		Variables:   in.Variables,
		Priority:    priority,
		RetryPolicy: policy,
		IsActive:    true,
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Template created",
		zap.Int64("template_id", t.ID),
		zap.String("name", t.Name),
		zap.String("kind", string(t.Kind)),
	)
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, id int64, includeDeleted bool) (*model.Template, error) {
	return s.repo.GetByID(ctx, id, includeDeleted)
}

// List returns active templates, optionally narrowed by channel kind.
func (s *TemplateService) List(ctx context.Context, kind string, limit, offset int) ([]*model.Template, int, error) {
	if kind != "" && !model.ChannelKind(kind).Valid() {
		return nil, 0, &apperr.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown channel kind %q", kind)}
	}
	return s.repo.ListActive(ctx, kind, limit, offset)
}
