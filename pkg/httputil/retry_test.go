package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return &RetryableError{Err: errors.New("down")}
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !IsRetryable(err) {
		t.Errorf("err = %v, want the last retryable error", err)
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 5, time.Hour, func() error {
		return &RetryableError{Err: errors.New("down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNoRetry(t *testing.T) {
	calls := 0
	_ = NoRetry.Do(context.Background(), func() error {
		calls++
		return &RetryableError{Err: errors.New("down")}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		wantErr   bool
		retryable bool
	}{
		{200, "", false, false},
		{201, "", false, false},
		{400, `{"code":107}`, true, false},
		{404, "", true, false},
		{429, "", true, true},
		{500, "boom", true, true},
		{503, "", true, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			err := CheckResponse(resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckResponse() = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", !tt.retryable, tt.retryable)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.status)
			}
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	if got := (&StatusError{StatusCode: 404}).Error(); got != "http 404 Not Found" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&StatusError{StatusCode: 500, Body: []byte(" oops\n")}).Error(); got != "http 500: oops" {
		t.Errorf("Error() = %q", got)
	}
}
