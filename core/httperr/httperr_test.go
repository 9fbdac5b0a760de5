package httperr_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferdifleet/console/core/httperr"
)

func TestError_Write(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	httperr.ErrForbidden.WithMessage("role not allowed").Write(w)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body["code"])
	assert.Equal(t, "role not allowed", body["message"])
}

func TestError_WithFields(t *testing.T) {
	t.Parallel()

	err := httperr.ErrUnprocessableEntity.WithFields(map[string]string{"email": "required"})
	assert.Equal(t, "required", err.Fields["email"])

	// The original predefined error must stay untouched.
	assert.Nil(t, httperr.ErrUnprocessableEntity.Fields)
}

func TestError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unauthorized", httperr.ErrUnauthorized.Error())
}
