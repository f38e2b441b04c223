package harness

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := nodeError(QueryError, "primary", "count rows", sql.ErrNoRows)

	assert.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NotErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.EqualError(t, err, "primary: query error: count rows: sql: no rows in result set")

	var nerr *Error
	assert.True(t, errors.As(err, &nerr))
	assert.Equal(t, "primary", nerr.Node)
}
