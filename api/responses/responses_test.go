package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

func decodeRaw(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return body
}

func TestWriteSuccessAlwaysCarriesBothKeys(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusAccepted {
		t.Fatalf("expected status 202 but got %d", got)
	}
	body := decodeRaw(t, w)
	if string(body["error"]) != "null" {
		t.Fatalf("expected error to be null, got %s", body["error"])
	}
	var data map[string]string
	if err := json.Unmarshal(body["data"], &data); err != nil || data["hello"] != "world" {
		t.Fatalf("unexpected data %s", body["data"])
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInsufficientCredits, "shopper has insufficient credits").
		WithDetails(map[string]any{"scope": "shopper"})
	WriteError(context.Background(), logger.Nop(), w, err)

	if got := w.Code; got != http.StatusPaymentRequired {
		t.Fatalf("expected status 402 but got %d", got)
	}
	body := decodeRaw(t, w)
	if string(body["data"]) != "null" {
		t.Fatalf("expected data to be null, got %s", body["data"])
	}
	var apiErr struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(body["error"], &apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr.Code != string(pkgerrors.CodeInsufficientCredits) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
	if apiErr.Message != "shopper has insufficient credits" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if apiErr.Details["scope"] != "shopper" {
		t.Fatalf("expected scope details, got %v", apiErr.Details)
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: password authentication failed"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	body := decodeRaw(t, w)
	var apiErr map[string]any
	if err := json.Unmarshal(body["error"], &apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr["code"] != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %v", apiErr["code"])
	}
	if _, ok := apiErr["details"]; ok {
		t.Fatalf("details should be omitted for internal errors")
	}
	if apiErr["message"] == "pq: password authentication failed" {
		t.Fatalf("internal error text leaked to client")
	}
}

func TestWriteErrorServiceUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, errors.New("redis down"), "generation could not be queued, please retry"))
	if got := w.Code; got != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 but got %d", got)
	}
}
