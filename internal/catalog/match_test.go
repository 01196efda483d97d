package catalog

import (
	"errors"
	"fmt"
	"testing"
)

func TestMatchGenres(t *testing.T) {
	tests := []struct {
		name   string
		genres []string
		tags   []string
		want   bool
	}{
		{"exact", []string{"pop"}, []string{"pop"}, true},
		{"case insensitive", []string{"Indie Pop"}, []string{"indie pop"}, true},
		{"whole word inside tag", []string{"rock"}, []string{"indie rock"}, true},
		{"no partial word", []string{"rock"}, []string{"rockabilly"}, false},
		{"separator folding", []string{"hip hop"}, []string{"Hip-Hop"}, true},
		{"multi word genre", []string{"singer-songwriter"}, []string{"uk singer songwriter"}, true},
		{"disjoint", []string{"metal"}, []string{"jazz", "soul"}, false},
		{"empty genres", nil, []string{"pop"}, false},
		{"empty tags", []string{"pop"}, nil, false},
		{"blank tag ignored", []string{"pop"}, []string{"", " "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGenres(tt.genres, tt.tags); got != tt.want {
				t.Errorf("MatchGenres(%v, %v) = %v, want %v", tt.genres, tt.tags, got, tt.want)
			}
		})
	}
}

func TestMatchText(t *testing.T) {
	if !MatchText([]string{"jazz"}, "Late Night Jazz Classics") {
		t.Error("MatchText should find genre in playlist name")
	}
	if MatchText([]string{"jazz"}, "") {
		t.Error("MatchText should not match empty text")
	}
}

func TestMatchedGenre(t *testing.T) {
	got, ok := MatchedGenre([]string{"metal", "punk", "rock"}, []string{"pop punk", "alt rock"})
	if !ok || got != "punk" {
		t.Errorf("MatchedGenre() = %q, %v, want punk, true", got, ok)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimited, true},
		{fmt.Errorf("search: %w", ErrUnavailable), true},
		{ErrUnauthorized, false},
		{ErrNotFound, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
