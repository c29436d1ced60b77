package config

import (
	"fmt"
	"strings"
	"unicode"
)

// splitCommand tokenizes a shell-like command line without invoking a shell.
// Single and double quotes group words; a backslash escapes the next rune.
func splitCommand(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var (
		words   []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range raw {
		if escaped {
			word.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", raw)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, raw)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}
