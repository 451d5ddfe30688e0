package mailbox

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DefaultOTPPatterns are tried in order. Keyword-anchored forms come first so
// a bare number elsewhere in the mail (a date, an amount) only wins when no
// labelled code exists.
var DefaultOTPPatterns = []string{
	`(?i)\bOTP\b[:\s]*(\d{4,6})\b`,
	`(?i)verification(?:\s+code)?(?:\s+is)?[:\s]*(\d{4,6})\b`,
	`(?i)\bcode(?:\s+is)?[:\s]*(\d{4,6})\b`,
	`\b(\d{4,6})\b`,
}

// Extractor pulls a numeric one-time code out of message text.
type Extractor struct {
	patterns []*regexp.Regexp
}

// NewExtractor compiles patterns; an empty list selects DefaultOTPPatterns.
func NewExtractor(patterns []string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultOTPPatterns
	}
	e := &Extractor{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

var defaultExtractor, _ = NewExtractor(nil)

// ExtractOTP applies DefaultOTPPatterns.
func ExtractOTP(subject, body string) (string, bool) {
	return defaultExtractor.Extract(subject, body)
}

// Extract searches the body before the subject, trying every pattern in
// order against each. The first capture group is returned when the pattern
// has one, otherwise the whole match.
func (e *Extractor) Extract(subject, body string) (string, bool) {
	for _, text := range []string{body, subject} {
		if text == "" {
			continue
		}
		for _, re := range e.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if len(m) > 1 && m[1] != "" {
				return m[1], true
			}
			return m[0], true
		}
	}
	return "", false
}

// HTMLToText flattens an HTML fragment to whitespace-separated text, dropping
// script and style content. Input that is not HTML passes through.
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		parts []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				parts = append(parts, string(z.Text()))
			}
		}
	}
}

func isRawTag(name []byte) bool {
	n := string(name)
	return n == "script" || n == "style"
}
