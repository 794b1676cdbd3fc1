package territory

import (
	"fmt"
	"strings"
)

// NormalizeCode zero-pads a raw geographic code to the fixed width of its
// granularity. Corsican codes (2A, 2B) are upper-cased. Spreadsheet exports
// sometimes carry a trailing ".0", which is dropped.
func NormalizeCode(raw string, g Granularity) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	code = strings.TrimSuffix(code, ".0")
	if code == "" {
		return "", fmt.Errorf("empty %s code", g)
	}
	width := g.CodeWidth()
	if isDigits(code) && len(code) < width {
		code = strings.Repeat("0", width-len(code)) + code
	}
	if len(code) != width {
		return "", fmt.Errorf("invalid %s code %q: want %d characters", g, raw, width)
	}
	for _, r := range code {
		if !(r >= '0' && r <= '9') && r != 'A' && r != 'B' {
			return "", fmt.Errorf("invalid %s code %q", g, raw)
		}
	}
	return code, nil
}

// DepartmentOf returns the département code of a commune or département code.
func DepartmentOf(code string) string {
	if len(code) < 2 {
		return code
	}
	return code[:2]
}

// IsOverseas reports whether a code belongs to an overseas département (97x).
func IsOverseas(code string) bool {
	return strings.HasPrefix(code, "97")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
