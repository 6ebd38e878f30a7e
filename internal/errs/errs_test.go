package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMarkKeepsChainAndKind(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	err := Wrap(Mark(root, ErrTransport), "list changed identities")

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("errors.Is(err, ErrTransport) = false")
	}
	if !errors.Is(err, root) {
		t.Fatalf("errors.Is(err, root) = false")
	}
	if got := err.Error(); got != "list changed identities: dial tcp: connection refused" {
		t.Fatalf("Error() = %q", got)
	}
	if Kind(err) != "transport" {
		t.Fatalf("Kind() = %q", Kind(err))
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	err := Mark(Mark(errors.New("boom"), ErrAuth), ErrAuth)
	marked, ok := err.(*markedError)
	if !ok {
		t.Fatalf("Mark() type = %T", err)
	}
	if _, nested := marked.err.(*markedError); nested {
		t.Fatalf("Mark() wrapped twice")
	}
	if Mark(nil, ErrAuth) != nil {
		t.Fatalf("Mark(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transport", err: Mark(errors.New("timeout"), ErrTransport), want: true},
		{name: "unclassified", err: errors.New("database is locked"), want: true},
		{name: "auth", err: Wrap(Mark(errors.New("denied"), ErrAuth), "connect"), want: false},
		{name: "canceled", err: fmt.Errorf("fetch: %w", context.Canceled), want: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := IsRetryable(testCase.err); got != testCase.want {
				t.Fatalf("IsRetryable() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestErrorChainStringsFollowsMarkedCause(t *testing.T) {
	err := Wrap(Mark(errors.New("root"), ErrEncoding), "decode record")
	chain := ErrorChainStrings(err)
	if len(chain) != 3 {
		t.Fatalf("chain = %v", chain)
	}
	if chain[2] != "root" {
		t.Fatalf("chain tail = %q", chain[2])
	}
}
