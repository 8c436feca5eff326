// Package encode produces the literal SQL text for one cell: plain
// literals, quoted text, hex blob literals, and nested JSON construction
// for complex types.
package encode

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Affinity is one of the five target storage classes a column maps to.
type Affinity int

const (
	// Blob stores raw bytes.
	Blob Affinity = iota
	// Numeric stores exact decimal values.
	Numeric
	// Integer stores whole numbers.
	Integer
	// Real stores floating-point values.
	Real
	// Text stores character data; it is also the default for anything
	// unrecognized.
	Text
)

// String returns the SQL type keyword for the affinity.
func (a Affinity) String() string {
	switch a {
	case Blob:
		return "BLOB"
	case Numeric:
		return "NUMERIC"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// IsNumeric reports whether inline cell text of this affinity is emitted
// verbatim as a numeric literal.
func (a Affinity) IsNumeric() bool {
	return a == Integer || a == Real || a == Numeric
}

// Fixed precedence, first match wins. Case-insensitive keyword matching
// against the declared SIARD type string (SIARD 2.2 §4, sqlite datatype3).
var (
	reInteger = regexp.MustCompile(`(?i)(BIG|SMALL)INT|INTEGER|\bINT\b|BOOL`)
	reNumeric = regexp.MustCompile(`(?i)NUMERIC|DECIMAL|DEC\s*\(`)
	reReal    = regexp.MustCompile(`(?i)DOUBLE|FLOAT|REAL`)
	reBlob    = regexp.MustCompile(`(?i)BINARY|BLOB|VARBINARY`)
)

// affinityCache memoizes classification per distinct declared type string;
// archives commonly declare the same type for many columns. Classification
// is deterministic, so the cache is safe to share.
var affinityCache, _ = lru.New[string, Affinity](1024)

// Classify maps a declared SIARD type string to its target affinity.
func Classify(declared string) Affinity {
	if aff, ok := affinityCache.Get(declared); ok {
		return aff
	}

	var aff Affinity
	switch {
	case reInteger.MatchString(declared):
		aff = Integer
	case reNumeric.MatchString(declared):
		aff = Numeric
	case reReal.MatchString(declared):
		aff = Real
	case reBlob.MatchString(declared):
		aff = Blob
	default:
		aff = Text
	}

	affinityCache.Add(declared, aff)
	return aff
}
