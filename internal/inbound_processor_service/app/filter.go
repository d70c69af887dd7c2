package app

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const regexKeywordPrefix = "regex:"

// ShouldProcess applies the sender whitelist and blacklist. Both compare exact
// strings; the blacklist only matters once the whitelist has passed the sender.
func ShouldProcess(cfg domain.InstanceConfig, sender string) bool {
	if len(cfg.SenderWhitelist) > 0 && !slices.Contains(cfg.SenderWhitelist, sender) {
		return false
	}
	return !slices.Contains(cfg.SenderBlacklist, sender)
}

type keywordRule struct {
	keyword string
	literal string
	pattern *regexp.Regexp
}

// KeywordMatcher holds the compiled keyword rules of one instance.
type KeywordMatcher struct {
	rules []keywordRule
}

// NewKeywordMatcher compiles keywords once. Literal keywords match as
// case-insensitive substrings; "regex:" keywords are case-insensitive regular
// expressions. Invalid patterns are logged and never match.
func NewKeywordMatcher(keywords []string, logger *slog.Logger) *KeywordMatcher {
	m := &KeywordMatcher{rules: make([]keywordRule, 0, len(keywords))}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(kw, regexKeywordPrefix); ok {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				logger.Warn("Skipping invalid keyword pattern", "keyword", kw, "error", err)
				continue
			}
			m.rules = append(m.rules, keywordRule{keyword: kw, pattern: re})
			continue
		}
		m.rules = append(m.rules, keywordRule{keyword: kw, literal: strings.ToLower(kw)})
	}
	return m
}

// Match returns the configured keywords found in body, in configuration order.
func (m *KeywordMatcher) Match(body string) []string {
	matches := []string{}
	if m == nil {
		return matches
	}
	lower := strings.ToLower(body)
	for _, rule := range m.rules {
		if rule.pattern != nil {
			if rule.pattern.MatchString(body) {
				matches = append(matches, rule.keyword)
			}
			continue
		}
		if strings.Contains(lower, rule.literal) {
			matches = append(matches, rule.keyword)
		}
	}
	return matches
}
