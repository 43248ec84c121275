// Package email turns institutional mailbox addresses into display names for
// profiles opened without an explicit subject name.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds "Given Family" from the local part of address, where
// dots, underscores, hyphens and plus signs separate words. Digits-only words
// (staff numbers in addresses like "jdoe.4821@") are skipped. It returns ""
// when nothing usable remains.
func DisplayName(address string) string {
	local := strings.TrimSpace(address)
	if at := strings.LastIndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	names := make([]string, 0, len(words))
	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		names = append(names, titleCase(w))
	}
	return strings.Join(names, " ")
}

func titleCase(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
