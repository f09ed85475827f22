package effectors

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type fakeSender struct {
	errs  []error // returned in order, then nil
	calls []string
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.calls = append(f.calls, channelID+":"+content)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestPoster(sender *fakeSender) *DiscordPoster {
	p := newDiscordPoster(sender, "chan-1")
	p.backoff = time.Millisecond
	return p
}

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

// --- isNonRetryableError ---

func TestIsNonRetryableError_PlainError(t *testing.T) {
	if isNonRetryableError(errors.New("network timeout")) {
		t.Error("generic error should be retryable")
	}
}

func TestIsNonRetryableError_4xxStatus(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404, 429} {
		if !isNonRetryableError(restError(code)) {
			t.Errorf("HTTP %d should be non-retryable", code)
		}
	}
}

func TestIsNonRetryableError_5xxStatus(t *testing.T) {
	for _, code := range []int{500, 502, 503} {
		if isNonRetryableError(restError(code)) {
			t.Errorf("HTTP %d should be retryable (server error)", code)
		}
	}
}

func TestIsNonRetryableError_NilResponse(t *testing.T) {
	err := &discordgo.RESTError{Response: nil}
	if isNonRetryableError(err) {
		t.Error("RESTError with nil response should be retryable")
	}
}

// --- DiscordPoster ---

func TestDiscordPoster_Posts(t *testing.T) {
	sender := &fakeSender{}
	result, err := newTestPoster(sender).Invoke(context.Background(), map[string]any{"content": "dinner is ready"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "Announced." {
		t.Errorf("result = %q", result)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "chan-1:dinner is ready" {
		t.Errorf("calls = %v", sender.calls)
	}
}

func TestDiscordPoster_MissingContent(t *testing.T) {
	sender := &fakeSender{}
	if _, err := newTestPoster(sender).Invoke(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing content")
	}
	if len(sender.calls) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestDiscordPoster_RetriesServerErrors(t *testing.T) {
	sender := &fakeSender{errs: []error{restError(502), errors.New("connection reset")}}
	if _, err := newTestPoster(sender).Invoke(context.Background(), map[string]any{"content": "hi"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(sender.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(sender.calls))
	}
}

func TestDiscordPoster_GivesUpOnClientErrors(t *testing.T) {
	sender := &fakeSender{errs: []error{restError(403)}}
	if _, err := newTestPoster(sender).Invoke(context.Background(), map[string]any{"content": "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if len(sender.calls) != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", len(sender.calls))
	}
}

func TestDiscordPoster_StopsOnCancel(t *testing.T) {
	sender := &fakeSender{errs: []error{restError(500), restError(500), restError(500)}}
	p := newTestPoster(sender)
	p.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Invoke(ctx, map[string]any{"content": "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
