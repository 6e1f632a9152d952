// Package testutil provides common test utilities and helpers for the intake API tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/precare/internal/api"
	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/store"
)

// T is the subset of testing.TB used by the helpers, so they can be exercised
// against a recording fake.
type T interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewTestServer creates an API server over a fresh in-memory store and returns
// both so tests can inspect stored sessions.
func NewTestServer() (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	return api.NewServer(st), st
}

// Do sends a request with an optional JSON body through h and returns the recorder.
func Do(t T, h http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the envelope and validates its status field.
func AssertJSONResponse(t T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// DecodeResult decodes the envelope's result field into target and returns the
// envelope message.
func DecodeResult(t T, rr *httptest.ResponseRecorder, target interface{}) string {
	t.Helper()
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	MustUnmarshalJSON(t, rr.Body.Bytes(), &envelope)
	if target != nil {
		if len(envelope.Result) == 0 {
			t.Fatalf("response has no result: %s", rr.Body.String())
			return envelope.Message
		}
		MustUnmarshalJSON(t, envelope.Result, target)
	}
	return envelope.Message
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// SeedSession stores a session positioned at step with the given free-text answers.
func SeedSession(t T, st store.Store, id string, step models.IntakeStep, answers map[models.IntakeStep]string) *models.IntakeSession {
	t.Helper()
	sess := models.NewIntakeSession(id, time.Now())
	sess.CurrentStep = step
	sess.Progress = models.ProgressFor(step)
	for k, v := range answers {
		if err := sess.Answers.Put(k, models.TextAnswer(v)); err != nil {
			t.Fatalf("failed to seed answer %s: %v", k, err)
			return nil
		}
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
		return nil
	}
	return sess
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
