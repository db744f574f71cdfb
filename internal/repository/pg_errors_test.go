package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "notification_templates_template_name_key"}

	require.True(t, uniqueViolation(dup))
	require.True(t, uniqueViolation(fmt.Errorf("failed to insert template: %w", dup)))

	require.False(t, uniqueViolation(nil))
	require.False(t, uniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, uniqueViolation(errors.New(`duplicate key value violates unique constraint "x"`)))
}
