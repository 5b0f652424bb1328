package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSQLInjection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"classic tautology", `/api/users?id=1' OR '1'='1`, true},
		{"union select", "/search?q=UNION SELECT password FROM users", true},
		{"union select mixed case", "/search?q=uNiOn SeLeCt 1,2,3", true},
		{"drop table", "/items?name=x; DROP TABLE items", true},
		{"comment terminator", "/login?user=admin'--", true},
		{"exec call", "/run?cmd=exec(master..xp_cmdshell)", true},
		{"numeric tautology", "/api?filter=1 OR 1=1", true},
		{"plain path", "/api/v1/users/42", false},
		{"ordinary query", "/products?category=books&sort=price", false},
		{"empty input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSQLInjection(tt.input))
		})
	}
}

func TestDetectXSS(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"script tag", "/comment?text=<script>alert(1)</script>", true},
		{"script tag upper case", "/comment?text=<SCRIPT>alert(1)</SCRIPT>", true},
		{"javascript scheme", "/redirect?url=javascript:alert(document.cookie)", true},
		{"event handler", `/profile?bio=<div onmouseover="steal()">`, true},
		{"img onerror", `/avatar?src=<img src=x onerror=alert(1)>`, true},
		{"iframe", "/embed?html=<iframe src=evil.com></iframe>", true},
		{"plain path", "/api/v1/comments", false},
		{"angle brackets without payload", "/math?expr=1<2", false},
		{"empty input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectXSS(tt.input))
		})
	}
}
