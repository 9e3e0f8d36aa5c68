package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeAndMatchesTemplate(t *testing.T) {
	cloned := Clone(ErrNotFound, "assignment not found")
	require.Equal(t, "assignment not found", cloned.Message)
	assert.Equal(t, ErrNotFound.Code, cloned.Code)
	assert.True(t, errors.Is(cloned, ErrNotFound))
	assert.False(t, errors.Is(cloned, ErrValidation))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestTransactionPreservesCause(t *testing.T) {
	err := Transaction(sql.ErrConnDone, "failed to delete submissions")
	assert.Equal(t, ErrTransaction.Code, err.Code)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Contains(t, err.Error(), "failed to delete submissions")
}
