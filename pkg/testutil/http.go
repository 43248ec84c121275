// Package testutil holds fixtures shared by handler, service and store tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ActorHeader names the acting user on API requests.
const ActorHeader = "X-Actor-ID"

// NewJSONRequest encodes body as the request payload and sends it as actorID.
// Pass a nil body for bodiless calls and "" to omit the actor header.
func NewJSONRequest(t *testing.T, method, path, actorID string, body any) *http.Request {
	t.Helper()
	payload := ""
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "encode request body")
		payload = string(raw)
	}
	return NewRawRequest(t, method, path, actorID, payload)
}

// NewRawRequest sends payload untouched, for malformed or unknown-field bodies.
func NewRawRequest(t *testing.T, method, path, actorID, payload string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(ActorHeader, actorID)
	}
	return req
}

// DoRequest serves req on h and returns what was written.
func DoRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// UnmarshalResponse decodes the recorded body as T and fails the test when
// it does not parse.
func UnmarshalResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	out := new(T)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "decode response: %s", rec.Body.String())
	return out
}

// AssertStatusAndError checks the status and the "error" code of an error body.
func AssertStatusAndError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, "status for body %s", rec.Body.String())
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "decode error body")
	assert.Equal(t, code, body.Error, "error code")
}
