package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/infrastructure/transport/http/dto"
)

func TestWriteJSON(t *testing.T) {
	h := NewBaseHandler("handler")

	rec := httptest.NewRecorder()
	h.WriteJSON(rec, http.StatusCreated, map[string]any{"ok": true})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	h := NewBaseHandler("handler")

	rec := httptest.NewRecorder()
	h.WriteJSON(rec, http.StatusOK, map[string]any{"v": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INTERNAL_ERROR", string(resp.Error.Kind))
}
