package cloudevent

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-chain/pkg/domain"
)

func TestFromRequest_Binary(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"n":1}`)))
	req.Header.Set("ce-specversion", "1.0")
	req.Header.Set("ce-id", "1")
	req.Header.Set("ce-source", "cli")
	req.Header.Set("ce-type", "http://dest-x")
	req.Header.Set("Content-Type", "application/json")

	e, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "1", e.ID)
	assert.Equal(t, "cli", e.Source)
	assert.Equal(t, "http://dest-x", e.Type)
	assert.JSONEq(t, `{"n":1}`, string(e.Data))
}

func TestFromRequest_Structured(t *testing.T) {
	body := `{"specversion":"1.0","id":"2","source":"step-two","type":"http://dest-y"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/cloudevents+json")

	e, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "2", e.ID)
	assert.Equal(t, "step-two", e.Source)
}

func TestFromRequest_NotAnEvent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`hello`)))
	req.Header.Set("Content-Type", "text/plain")

	_, err := FromRequest(req)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestWriteResponse_Binary(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteResponse(context.Background(), rec, sampleEvent()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("ce-id"))
	assert.Equal(t, "step-one", rec.Header().Get("ce-source"))
	assert.Equal(t, "http://dest-x", rec.Header().Get("ce-type"))
	assert.JSONEq(t, `{"order":12}`, rec.Body.String())
}
