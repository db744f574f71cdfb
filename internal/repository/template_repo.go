package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

const templateColumns = `id, template_name, template_type, COALESCE(subject, ''), content,
	COALESCE(variables, '{}'), priority, retry_policy, is_active,
	created_at, updated_at, is_deleted, deleted_at`

type TemplateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTemplateRepository(db *pgxpool.Pool, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) Insert(ctx context.Context, t *model.Template) error {
	policy, err := json.Marshal(t.RetryPolicy)
	if err != nil {
		return fmt.Errorf("failed to marshal retry policy: %w", err)
	}

	query := `
		INSERT INTO notification_templates
			(template_name, template_type, subject, content, variables, priority, retry_policy, is_active)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		t.Name, string(t.Kind), t.Subject, t.Content, t.Variables, string(t.Priority), policy, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return &apperr.ValidationError{Field: "template_name", Reason: fmt.Sprintf("%q already exists", t.Name)}
		}
		r.logger.Error("Failed to insert template", zap.String("name", t.Name), zap.Error(err))
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64, includeDeleted bool) (*model.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_templates WHERE id = $1`, templateColumns)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "template", ID: id}
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*model.Template, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM notification_templates WHERE template_name = $1 AND is_deleted = FALSE`,
		templateColumns)

	t, err := scanTemplate(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "template"}
		}
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return t, nil
}

// ListActive returns active templates, newest first. kind narrows by channel
// kind when non-empty.
func (r *TemplateRepository) ListActive(ctx context.Context, kind string, limit, offset int) ([]*model.Template, int, error) {
	where := `is_deleted = FALSE AND is_active = TRUE`
	args := []any{}
	if kind != "" {
		where += ` AND template_type = $1`
		args = append(args, kind)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM notification_templates WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notification_templates WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		templateColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, total, rows.Err()
}

func scanTemplate(row pgx.Row) (*model.Template, error) {
	var t model.Template
	var kind, priority string
	var policy []byte
	err := row.Scan(
		&t.ID, &t.Name, &kind, &t.Subject, &t.Content,
		&t.Variables, &priority, &policy, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt, &t.IsDeleted, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = model.ChannelKind(kind)
	t.Priority = model.Priority(priority)
	if err := json.Unmarshal(policy, &t.RetryPolicy); err != nil {
		return nil, fmt.Errorf("failed to decode retry policy: %w", err)
	}
	return &t, nil
}
