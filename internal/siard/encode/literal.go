package encode

import (
	"encoding/hex"
	"strings"
)

// EmptyLiteral is the placeholder emitted for absent or unencodable cells.
const EmptyLiteral = "''"

// QuoteLiteral wraps s in single quotes, doubling embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BlobLiteral renders data as a hexadecimal blob literal.
func BlobLiteral(data []byte) string {
	return "X'" + strings.ToUpper(hex.EncodeToString(data)) + "'"
}

// TextBlobLiteral renders data as a blob literal cast back to TEXT, used
// for character data containing bytes that cannot appear in a quoted
// string literal.
func TextBlobLiteral(data []byte) string {
	return "CAST(" + BlobLiteral(data) + " AS TEXT)"
}

// DecodeEscapes replaces every \u00XX escape in s with the single byte it
// encodes and reports whether any escape was found. SIARD writes control
// characters, including NUL, this way (SIARD 2.2 §5.3).
func DecodeEscapes(s string) ([]byte, bool) {
	if !strings.Contains(s, `\u00`) {
		return []byte(s), false
	}

	out := make([]byte, 0, len(s))
	found := false
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+5 < len(s) &&
			s[i+1] == 'u' && s[i+2] == '0' && s[i+3] == '0' &&
			isHexDigit(s[i+4]) && isHexDigit(s[i+5]) {
			out = append(out, hexValue(s[i+4])<<4|hexValue(s[i+5]))
			found = true
			i += 6
			continue
		}
		out = append(out, s[i])
		i++
	}
	return out, found
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexValue(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}
