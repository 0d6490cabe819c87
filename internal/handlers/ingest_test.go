package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/deskwing/deskwing/internal/pipeline"
)

type fakeProcessor struct {
	result pipeline.Result
	err    error
	got    pipeline.Envelope
}

func (p *fakeProcessor) Process(ctx context.Context, env pipeline.Envelope) (pipeline.Result, error) {
	p.got = env
	return p.result, p.err
}

func submitContext(t *testing.T, body string, claims jwt.MapClaims) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &jwt.Token{Valid: true, Claims: claims})
	return c, rec
}

func operatorClaims() jwt.MapClaims {
	return jwt.MapClaims{"sub": "op-1", "user_id": "op-1"}
}

func adapterClaims(channel string) jwt.MapClaims {
	return jwt.MapClaims{"typ": "channel_adapter", "channel": channel, "adapter_id": "widget-1"}
}

func TestSubmitReturnsPipelineResult(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{result: pipeline.Result{Action: pipeline.ActionReply, Channel: "email", RenderedText: "Hello,"}}
	h := NewIngestHandler(slog.Default(), proc)

	c, rec := submitContext(t, `{"channel":"email","sender_identifier":"a@x.com","text":"hi"}`, operatorClaims())
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if res.Action != pipeline.ActionReply {
		t.Errorf("action = %q", res.Action)
	}
	if proc.got.ReceivedAt.IsZero() {
		t.Error("received_at should default to now")
	}
}

func TestSubmitAdapterChannelPinned(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{result: pipeline.Result{Action: pipeline.ActionReply}}
	h := NewIngestHandler(slog.Default(), proc)

	c, _ := submitContext(t, `{"channel":"email","sender_identifier":"a@x.com","text":"hi"}`, adapterClaims("chat"))
	err := h.Submit(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestSubmitAdapterChannelDefaulted(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{result: pipeline.Result{Action: pipeline.ActionReply}}
	h := NewIngestHandler(slog.Default(), proc)

	c, _ := submitContext(t, `{"sender_identifier":"visitor-9","text":"hi"}`, adapterClaims("chat"))
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if proc.got.Channel != "chat" {
		t.Errorf("channel = %q, want adapter channel", proc.got.Channel)
	}
}

func TestSubmitValidationError(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{
		result: pipeline.Result{Action: pipeline.ActionFailed},
		err:    &pipeline.ValidationError{Err: errors.New("text is required")},
	}
	h := NewIngestHandler(slog.Default(), proc)

	c, _ := submitContext(t, `{"channel":"email","sender_identifier":"a@x.com"}`, operatorClaims())
	err := h.Submit(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestSubmitPipelineFailureAccepted(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{
		result: pipeline.Result{Action: pipeline.ActionFailed, Channel: "chat", RenderedText: "hi there! sorry, something went wrong on our side."},
		err:    errors.New("storage unavailable: retries exhausted"),
	}
	h := NewIngestHandler(slog.Default(), proc)

	c, rec := submitContext(t, `{"channel":"chat","sender_identifier":"visitor-9","text":"hi"}`, operatorClaims())
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if res.Action != pipeline.ActionFailed || res.RenderedText == "" {
		t.Errorf("result = %+v", res)
	}
}
