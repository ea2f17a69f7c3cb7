package mongodb

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LikePattern translates a like pattern into an anchored regular expression.
// An unescaped % matches any sequence, \% is a literal percent sign, and every
// other byte matches itself, invalid UTF-8 included.
func LikePattern(like string) string {
	var b strings.Builder
	b.Grow(len(like) + 2)
	b.WriteByte('^')
	// % and \ are ASCII, so they never occur inside a multi-byte sequence
	start := 0
	for i := 0; i < len(like); i++ {
		switch {
		case like[i] == '\\' && i+1 < len(like) && like[i+1] == '%':
			b.WriteString(regexp.QuoteMeta(like[start:i]))
			b.WriteByte('%')
			i++
			start = i + 1
		case like[i] == '%':
			b.WriteString(regexp.QuoteMeta(like[start:i]))
			b.WriteString(".*")
			start = i + 1
		}
	}
	b.WriteString(regexp.QuoteMeta(like[start:]))
	b.WriteByte('$')
	return b.String()
}

// exactPattern matches s as a whole value.
func exactPattern(s string) string {
	return "^" + regexp.QuoteMeta(s) + "$"
}

func regexValue(pattern string, foldCase bool) primitive.Regex {
	re := primitive.Regex{Pattern: pattern}
	if foldCase {
		re.Options = "i"
	}
	return re
}
