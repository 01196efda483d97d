package sentiment

import (
	"strings"
	"unicode"
)

// contractions maps common English contractions to their expanded form.
// Suffix rules are applied when a token is not found here.
var contractions = map[string]string{
	"i'm":     "i am",
	"can't":   "can not",
	"won't":   "will not",
	"shan't":  "shall not",
	"ain't":   "is not",
	"let's":   "let us",
	"y'all":   "you all",
	"it's":    "it is",
	"that's":  "that is",
	"what's":  "what is",
	"there's": "there is",
}

var contractionSuffixes = []struct {
	suffix, expansion string
}{
	{"n't", " not"},
	{"'re", " are"},
	{"'ll", " will"},
	{"'ve", " have"},
	{"'d", " would"},
	{"'s", ""},
}

// Normalize lowercases text, expands contractions and replaces every
// non-alphabetic character with a space. Runs of whitespace collapse to one.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(text)

	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = expandContraction(strings.Trim(f, ".,!?;:\"()[]"))
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.Join(fields, " ") {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the normalized words of text.
func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}

func expandContraction(word string) string {
	if exp, ok := contractions[word]; ok {
		return exp
	}
	for _, c := range contractionSuffixes {
		if stem, ok := strings.CutSuffix(word, c.suffix); ok && stem != "" {
			return stem + c.expansion
		}
	}
	return word
}
