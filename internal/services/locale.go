package services

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used when nothing the caller prefers is supported.
const DefaultLocale = "en"

var (
	supportedLocales = []language.Tag{language.English, language.Hindi, language.Telugu}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// NegotiateLocale picks the notification locale from the candidates in preference order.
// Each candidate may be a single tag or an Accept-Language header value.
func NegotiateLocale(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(candidate)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, index, confidence := localeMatcher.Match(tags...)
		if confidence == language.No {
			continue
		}
		base, _ := supportedLocales[index].Base()
		return base.String()
	}
	return DefaultLocale
}
