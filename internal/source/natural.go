package source

import "strings"

// NaturalLess orders names the way people read them: digit runs compare by
// numeric value and text compares case-insensitively, so "img2" < "img10".
func NaturalLess(a, b string) bool {
	ca, cb := naturalChunks(a), naturalChunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		// Chunks alternate text, digits, text... starting with text
		if i%2 == 1 {
			if c := compareDigits(ca[i], cb[i]); c != 0 {
				return c < 0
			}
			continue
		}
		x, y := strings.ToLower(ca[i]), strings.ToLower(cb[i])
		if x != y {
			return x < y
		}
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}

func naturalChunks(s string) []string {
	chunks := make([]string, 0, 4)
	start := 0
	digits := false
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		if isDigit != digits {
			chunks = append(chunks, s[start:i])
			start = i
			digits = isDigit
		}
	}
	return append(chunks, s[start:])
}

func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}
