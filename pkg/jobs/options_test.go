package jobs

import (
	"testing"
	"time"
)

func TestBackoff_NextDelay(t *testing.T) {
	fixed := Backoff{Type: BackoffFixed, Delay: 5 * time.Second}
	for attempt := 1; attempt <= 4; attempt++ {
		if got := fixed.NextDelay(attempt); got != 5*time.Second {
			t.Errorf("fixed.NextDelay(%d) = %v, want 5s", attempt, got)
		}
	}

	exp := Backoff{Type: BackoffExponential, Delay: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := exp.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("exponential.NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := exp.NextDelay(0); got != time.Second {
		t.Errorf("NextDelay(0) = %v, want base delay", got)
	}
}

func TestRetention(t *testing.T) {
	if !(Retention{}).IsZero() {
		t.Error("zero retention must report unset")
	}
	if Keep().IsZero() || Discard().IsZero() || KeepLast(3).IsZero() {
		t.Error("constructed retention must not report unset")
	}
	if !Discard().Discards() {
		t.Error("Discard must discard")
	}
	if Keep().Discards() {
		t.Error("Keep must not discard")
	}
	if limit, ok := KeepLast(3).Limit(); !ok || limit != 3 {
		t.Errorf("KeepLast(3).Limit() = (%d, %v), want (3, true)", limit, ok)
	}
	if _, ok := Keep().Limit(); ok {
		t.Error("Keep has no limit")
	}
}

func TestResolveJobOptions_Precedence(t *testing.T) {
	registration := JobOptions{
		Attempts:         5,
		Backoff:          Backoff{Type: BackoffFixed, Delay: 2 * time.Second},
		RemoveOnComplete: Keep(),
	}
	dispatch := JobOptions{
		Attempts: 2,
		Timeout:  30 * time.Second,
	}

	got := resolveJobOptions(registration, dispatch)
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (dispatch wins)", got.Attempts)
	}
	if got.Backoff.Type != BackoffFixed || got.Backoff.Delay != 2*time.Second {
		t.Errorf("backoff = %+v, want registration value (dispatch silent)", got.Backoff)
	}
	if !got.RemoveOnComplete.IsZero() && got.RemoveOnComplete.Discards() {
		t.Error("removeOnComplete must keep registration's Keep")
	}
	if got.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got.Timeout)
	}
	if got.RemoveOnFail.Discards() {
		t.Error("removeOnFail must fall through to the retaining default")
	}
}

func TestResolveJobOptions_Defaults(t *testing.T) {
	got := resolveJobOptions()
	if got.Attempts != DefaultAttempts {
		t.Errorf("attempts = %d, want %d", got.Attempts, DefaultAttempts)
	}
	if got.Backoff.Type != BackoffExponential || got.Backoff.Delay != DefaultBackoffDelay {
		t.Errorf("backoff = %+v, want exponential default", got.Backoff)
	}

	// A nonsensical attempts value clamps to one execution.
	got = resolveJobOptions(JobOptions{Attempts: -4})
	if got.Attempts < 1 {
		t.Errorf("attempts = %d, want >= 1", got.Attempts)
	}
}
