// Package detectors scans captured responses for sensitive data: PII and
// credential/secret material. The executor applies these scanners to every
// response captured by a data-leakage check.
package detectors

import (
	"bufio"
	"os"
	"regexp"
	"strings"
	"sync"
)

type Pattern struct {
	Name     string
	Regex    *regexp.Regexp
	Severity string
	Kind     string // "pii" or "credential"
}

// Match is one detector hit inside a scanned response.
type Match struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Excerpt  string `json:"excerpt"`
}

var defaultPatterns = []Pattern{
	{Name: "email_address", Regex: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), Severity: "medium", Kind: "pii"},
	{Name: "us_ssn", Regex: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), Severity: "critical", Kind: "pii"},
	{Name: "credit_card", Regex: regexp.MustCompile(`\b(?:4\d{3}|5[1-5]\d{2}|3[47]\d{2}|6011)[ \-]?\d{4}[ \-]?\d{4}[ \-]?\d{1,4}\b`), Severity: "critical", Kind: "pii"},
	{Name: "phone_number", Regex: regexp.MustCompile(`\b\+?\d{1,3}[ \-.]?\(?\d{3}\)?[ \-.]?\d{3}[ \-.]?\d{4}\b`), Severity: "low", Kind: "pii"},
	{Name: "aws_access_key", Regex: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), Severity: "critical", Kind: "credential"},
	{Name: "private_key_block", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`), Severity: "critical", Kind: "credential"},
	{Name: "bearer_token", Regex: regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-_.~+/]{20,}=*`), Severity: "high", Kind: "credential"},
	{Name: "generic_api_key", Regex: regexp.MustCompile(`(?i)(?:api[_\-]?key|secret[_\-]?key|access[_\-]?token)["':=\s]+[a-z0-9\-_]{16,}`), Severity: "high", Kind: "credential"},
	{Name: "password_assignment", Regex: regexp.MustCompile(`(?i)(?:password|passwd|pwd)["':=\s]+[^\s"']{6,}`), Severity: "high", Kind: "credential"},
	{Name: "jwt", Regex: regexp.MustCompile(`\beyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\b`), Severity: "high", Kind: "credential"},
	{Name: "connection_string", Regex: regexp.MustCompile(`(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^\s"']+:[^\s"']+@`), Severity: "critical", Kind: "credential"},
}

// Scanner holds the active pattern set. Safe for concurrent Scan calls;
// Reload may run concurrently with scans.
type Scanner struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// NewScanner returns a scanner with the built-in pattern set.
func NewScanner() *Scanner {
	return &Scanner{patterns: DefaultPatterns()}
}

// DefaultPatterns returns a copy of the built-in pattern table.
func DefaultPatterns() []Pattern {
	patterns := make([]Pattern, len(defaultPatterns))
	copy(patterns, defaultPatterns)
	return patterns
}

// Scan runs every active pattern over the body and returns one match per
// pattern with a bounded excerpt of what matched.
func (s *Scanner) Scan(body string) []Match {
	if body == "" {
		return nil
	}

	s.mu.RLock()
	patterns := s.patterns
	s.mu.RUnlock()

	var matches []Match
	for _, p := range patterns {
		loc := p.Regex.FindStringIndex(body)
		if loc == nil {
			continue
		}
		matches = append(matches, Match{
			Pattern:  p.Name,
			Severity: p.Severity,
			Kind:     p.Kind,
			Excerpt:  excerpt(body, loc[0], loc[1]),
		})
	}
	return matches
}

// LoadCustomFile replaces the active pattern set with the built-ins plus
// custom regexes read from a file, one per line. Lines starting with # and
// uncompilable lines are skipped.
func (s *Scanner) LoadCustomFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	patterns := DefaultPatterns()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			continue
		}
		patterns = append(patterns, Pattern{
			Name:     "custom:" + line,
			Regex:    re,
			Severity: "high",
			Kind:     "credential",
		})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.patterns = patterns
	s.mu.Unlock()
	return nil
}

// PatternCount returns the number of active patterns.
func (s *Scanner) PatternCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

func excerpt(body string, start, end int) string {
	const margin = 20
	lo := start - margin
	if lo < 0 {
		lo = 0
	}
	hi := end + margin
	if hi > len(body) {
		hi = len(body)
	}
	return body[lo:hi]
}
