package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(ErrCodeNoMetadata, "no artifact for %s %s", "six", "1.16.0"), "NO_METADATA: no artifact for six 1.16.0"},
		{Wrap(ErrCodeFetch, errors.New("connection reset"), "fetch %s", "https://files/x.whl"), "FETCH_FAILED: fetch https://files/x.whl: connection reset"},
		{Wrap(ErrCodeDeadline, context.DeadlineExceeded, "Execution time limit reached!"), "DEADLINE_EXCEEDED: Execution time limit reached!: context deadline exceeded"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(ErrCodeDeadline, context.DeadlineExceeded, "resolve flask")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(err, DeadlineExceeded) = false")
	}
	if errors.Unwrap(err) != context.DeadlineExceeded {
		t.Errorf("Unwrap() = %v", errors.Unwrap(err))
	}
}

func TestIs(t *testing.T) {
	chained := Wrap(ErrCodeFetch, New(ErrCodeNetwork, "status 503"), "fetch index")
	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"matching code", New(ErrCodeSingleRoot, "two roots"), ErrCodeSingleRoot, true},
		{"other code", New(ErrCodeSingleRoot, "two roots"), ErrCodeNetwork, false},
		{"outer code", chained, ErrCodeFetch, true},
		{"inner code", chained, ErrCodeNetwork, true},
		{"behind fmt wrap", fmt.Errorf("scan: %w", New(ErrCodeGraphTooDeep, "depth 300")), ErrCodeGraphTooDeep, true},
		{"plain error", errors.New("plain"), ErrCodeInvalidInput, false},
		{"nil", nil, ErrCodeInvalidInput, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCodeAndUserMessage(t *testing.T) {
	err := fmt.Errorf("worker 3: %w", Wrap(ErrCodeInvalidPackage, errors.New("bad char"), "requirement %q", "foo bar"))
	if got := GetCode(err); got != ErrCodeInvalidPackage {
		t.Errorf("GetCode() = %q", got)
	}
	if got := UserMessage(err); got != `requirement "foo bar"` {
		t.Errorf("UserMessage() = %q", got)
	}

	plain := errors.New("plain")
	if GetCode(plain) != "" || GetCode(nil) != "" {
		t.Error("GetCode of non-coded errors should be empty")
	}
	if UserMessage(plain) != "plain" {
		t.Errorf("UserMessage(plain) = %q", UserMessage(plain))
	}
}

func TestFatal(t *testing.T) {
	if Fatal(New(ErrCodeStuck, "bandit")) {
		t.Error("stuck process should not be fatal")
	}
	if !Fatal(Wrap(ErrCodeStuck, New(ErrCodeUnkillable, "pid 42"), "bandit")) {
		t.Error("unkillable process should be fatal")
	}
}
