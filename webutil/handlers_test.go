package webutil

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// presetContentType mimics the router's default-header middleware,
// which sets Content-Type on every response before handlers run.
func presetContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
		next.ServeHTTP(w, r)
	})
}

func TestMakeHandlerWritesErrorDespitePresetHeader(t *testing.T) {
	handler := presetContentType(MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return ErrBadRequest("Invalid meeting ID format")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meetings/not-a-uuid", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid meeting ID format", body["error"])
}

func TestMakeHandlerSkipsErrorAfterResponseWritten(t *testing.T) {
	handler := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return ErrInternalServer("too late")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMakeHandlerMapsSQLNoRowsToNotFound(t *testing.T) {
	handler := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return sql.ErrNoRows
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMakeHandlerMapsUnknownErrorToInternal(t *testing.T) {
	handler := MakeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("boom")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])
}

func TestRespondWithJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithJSON(rec, http.StatusOK, map[string]int{"n": 1})

	assert.Equal(t, ContentTypeJSONUTF8, rec.Header().Get(HeaderContentType))
	assert.Equal(t, http.StatusOK, rec.Code)
}
