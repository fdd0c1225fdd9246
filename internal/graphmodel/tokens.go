package graphmodel

import "strings"

// Tokenize lowercases name, splits on the separator set [_-./], and drops
// fragments shorter than two characters. Node producers attach the result
// as Tokens so cross-domain matching never re-derives it.
func Tokenize(name string) []string {
	lower := strings.ToLower(name)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case '_', '-', '.', '/':
			return true
		}
		return false
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
