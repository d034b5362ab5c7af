package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// CompilePattern turns a path template into an anchored regular expression.
// "*" matches any run of characters, ":name" matches one non-empty segment
// without "/", and everything else is literal.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}

	var b strings.Builder
	b.WriteByte('^')

	literalStart := 0
	flush := func(end int) {
		if end > literalStart {
			b.WriteString(regexp.QuoteMeta(pattern[literalStart:end]))
		}
	}

	for i := 0; i < len(pattern); {
		switch {
		case pattern[i] == '*':
			flush(i)
			b.WriteString(".*")
			i++
			literalStart = i
		case pattern[i] == ':' && i+1 < len(pattern) && isParamChar(pattern[i+1]):
			flush(i)
			j := i + 1
			for j < len(pattern) && isParamChar(pattern[j]) {
				j++
			}
			b.WriteString("[^/]+")
			i = j
			literalStart = i
		default:
			i++
		}
	}
	flush(len(pattern))
	b.WriteByte('$')

	return regexp.Compile(b.String())
}

func isParamChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
