package catalog

import (
	"strings"
	"unicode"
)

// normalizeTag lowercases a tag and folds separators to single spaces,
// so "Hip-Hop" and "hip hop" compare equal.
func normalizeTag(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// tagMatches reports whether genre equals tag or appears in it as a
// whole-word phrase ("rock" matches "indie rock", not "rockabilly").
func tagMatches(genre, tag string) bool {
	if genre == "" || tag == "" {
		return false
	}
	if genre == tag {
		return true
	}
	return strings.Contains(" "+tag+" ", " "+genre+" ")
}

// MatchGenres reports whether any requested genre intersects the tag set.
func MatchGenres(genres, tags []string) bool {
	if len(genres) == 0 || len(tags) == 0 {
		return false
	}
	norm := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := normalizeTag(t); n != "" {
			norm = append(norm, n)
		}
	}
	for _, g := range genres {
		g = normalizeTag(g)
		for _, t := range norm {
			if tagMatches(g, t) {
				return true
			}
		}
	}
	return false
}

// MatchText reports whether any requested genre appears as a whole-word
// phrase in free text such as a playlist name.
func MatchText(genres []string, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return MatchGenres(genres, []string{text})
}

// MatchedGenre returns the first requested genre intersecting tags.
func MatchedGenre(genres, tags []string) (string, bool) {
	for _, g := range genres {
		if MatchGenres([]string{g}, tags) {
			return g, true
		}
	}
	return "", false
}
