package detector

import "regexp"

// Static attack signatures. Patterns are compiled once at init and shared;
// regexp matching is safe for concurrent use, so the matcher is stateless
// and can run on the request hot path.

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bunion\b.{1,100}\bselect\b)`),
	regexp.MustCompile(`(?i)(\bselect\b.{1,100}\bfrom\b)`),
	regexp.MustCompile(`(?i)(\binsert\b\s+\binto\b)`),
	regexp.MustCompile(`(?i)(\bdrop\b\s+\btable\b)`),
	regexp.MustCompile(`(?i)(\bdelete\b\s+\bfrom\b)`),
	regexp.MustCompile(`(?i)('\s*(or|and)\s*'?[^']*'?\s*=\s*'?)`),
	regexp.MustCompile(`(?i)(\b(or|and)\b\s+\d+\s*=\s*\d+)`),
	regexp.MustCompile(`(--|;--|;|#)\s*$`),
	regexp.MustCompile(`(?i)(\bexec(ute)?\b)`),
	regexp.MustCompile(`(?i)(\bxp_cmdshell\b)`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)</script\s*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|submit)\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)<object[^>]*>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)<img[^>]*\bonerror\b`),
}

// DetectSQLInjection reports whether input matches a known SQL injection
// signature. Empty input never matches.
func DetectSQLInjection(input string) bool {
	if input == "" {
		return false
	}
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// DetectXSS reports whether input matches a known cross-site scripting
// signature. Empty input never matches.
func DetectXSS(input string) bool {
	if input == "" {
		return false
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
