package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetrievalErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("selecting images: %w", &RetrievalError{Cause: cause})

	var retrieval *RetrievalError
	if !errors.As(wrapped, &retrieval) {
		t.Fatal("RetrievalError not found in chain")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause not reachable through the chain")
	}
}

func TestTypedErrorsCarryCounts(t *testing.T) {
	var insufficient *InsufficientCandidatesError
	err := fmt.Errorf("selecting images: %w", &InsufficientCandidatesError{Have: 3, Need: 10})
	if !errors.As(err, &insufficient) {
		t.Fatal("InsufficientCandidatesError not found in chain")
	}
	if insufficient.Have != 3 || insufficient.Need != 10 {
		t.Errorf("counts lost: %+v", insufficient)
	}

	var diversity *DiversityError
	err = fmt.Errorf("selecting images: %w", &DiversityError{Have: 7, Need: 10})
	if !errors.As(err, &diversity) {
		t.Fatal("DiversityError not found in chain")
	}
	if diversity.Have != 7 || diversity.Need != 10 {
		t.Errorf("counts lost: %+v", diversity)
	}
}

func TestCanonicalUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@StyleDaily", "styledaily"},
		{"  @Trendy  ", "trendy"},
		{"plain", "plain"},
		{"@", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := CanonicalUsername(tc.in); got != tc.want {
			t.Errorf("CanonicalUsername(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalUsernames_Dedup(t *testing.T) {
	got := CanonicalUsernames([]string{"@Alpha", "alpha", "", "beta", "@BETA"})
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("got %v", got)
	}
}
