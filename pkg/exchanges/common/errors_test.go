package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestAPIErrorTransient(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{418, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{HTTPStatus: tt.status}
		if got := e.Transient(); got != tt.want {
			t.Errorf("status %d: Transient() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled context", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit", &APIError{HTTPStatus: 429}, true},
		{"bad request", &APIError{HTTPStatus: 400, Code: -2019}, false},
		{"wrapped api error", fmt.Errorf("place order: %w", &APIError{HTTPStatus: 502}), true},
		{"net error", fakeNetError{}, true},
		{"plain error", errors.New("something"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBudgetWeightTracking(t *testing.T) {
	b := NewBudget(100, 100, 1000, time.Minute)

	b.UpdateFromHeader("250")
	used, limit, pct := b.Usage()
	if used != 250 || limit != 1000 || pct != 25 {
		t.Errorf("usage = %d/%d (%.1f%%), want 250/1000 (25%%)", used, limit, pct)
	}
	if b.Saturated() {
		t.Error("25% usage must not read as saturated")
	}

	b.UpdateFromHeader("950")
	if !b.Saturated() {
		t.Error("95% usage must read as saturated")
	}

	// Garbage headers are ignored.
	b.UpdateFromHeader("not-a-number")
	if used, _, _ := b.Usage(); used != 950 {
		t.Errorf("usage after bad header = %d, want 950", used)
	}
}
