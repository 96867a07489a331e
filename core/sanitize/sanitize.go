// Package sanitize makes free text and URLs safe to write to logs.
//
// Both functions are total: malformed input degrades to a conservative
// default instead of an error, because they sit in front of every reply.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InvalidURL is returned by SafeDomain when no host can be extracted.
const InvalidURL = "invalid-url"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	// Anchored; redactIPv4 supplies the word boundaries RE2 only knows in ASCII.
	ipv4Pattern = regexp.MustCompile(`^(?:\p{Nd}{1,3}\.){3}\p{Nd}{1,3}`)
	// The value runs until any Unicode space, not just the ASCII ones \s covers.
	credentialPattern = regexp.MustCompile(`(password|token|key|secret)=[^\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// Order matters: emails are replaced before the IP rule can see dotted
// digits in their domains, and redaction runs before escaping.
var rules = []func(string) string{
	func(s string) string { return emailPattern.ReplaceAllString(s, "[EMAIL]") },
	redactIPv4,
	func(s string) string { return credentialPattern.ReplaceAllString(s, "${1}=[REDACTED]") },
}

// Input redacts emails, IPv4 addresses and credential assignments from text
// and escapes the result for HTML contexts.
func Input(text string) string {
	if text == "" {
		return ""
	}
	for _, redact := range rules {
		text = redact(text)
	}
	return htmlEscaper.Replace(text)
}

// redactIPv4 replaces dotted quads of decimal digits from any script that
// stand between word boundaries.
func redactIPv4(text string) string {
	var b strings.Builder
	last := 0
	prev := utf8.RuneError
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsDigit(r) && !isWordRune(prev) {
			if loc := ipv4Pattern.FindStringIndex(text[i:]); loc != nil {
				end := i + loc[1]
				next, _ := utf8.DecodeRuneInString(text[end:])
				if end == len(text) || !isWordRune(next) {
					b.WriteString(text[last:i])
					b.WriteString("[IP]")
					last = end
					prev, _ = utf8.DecodeLastRuneInString(text[:end])
					i = end
					continue
				}
			}
		}
		prev = r
		i += size
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// SafeDomain reduces a URL to a coarse domain label. Hosts with more than two
// labels keep only the last two, so "sub.example.com" becomes "example.com".
// This is not public-suffix aware: "foo.co.uk" becomes "co.uk".
func SafeDomain(rawURL string) (domain string) {
	defer func() {
		if recover() != nil {
			domain = InvalidURL
		}
	}()

	if rawURL == "" {
		return InvalidURL
	}
	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	} else {
		host = authority(rawURL)
	}
	if host == "" {
		return InvalidURL
	}

	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

// authority pulls the host[:port] out of a URL that url.Parse rejects, such
// as one with a bad percent-escape in its path or a non-numeric port. An
// unbalanced IPv6 bracket still yields "".
func authority(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, ":"); i > 0 && isScheme(rest[:i]) {
		rest = rest[i+1:]
	}
	if !strings.HasPrefix(rest, "//") {
		return ""
	}
	rest = rest[2:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if strings.Contains(rest, "[") != strings.Contains(rest, "]") {
		return ""
	}
	return rest
}

func isScheme(s string) bool {
	for i, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}
