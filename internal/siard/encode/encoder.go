package encode

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/siard-tools/siard2sql/core/xml"
	"github.com/siard-tools/siard2sql/internal/archive"
	"github.com/siard-tools/siard2sql/internal/logging"
	"github.com/siard-tools/siard2sql/internal/siard/catalog"
	"github.com/siard-tools/siard2sql/internal/siard/lob"
)

// MaxDepth bounds recursion into nested user-defined types. Metadata with
// reference cycles would otherwise never terminate.
const MaxDepth = 16

// Encoder turns cell elements from a table document into SQL literal text.
// One Encoder serves a whole conversion run; per-column state (the lob
// folder resolver) travels with each call.
type Encoder struct {
	Catalog *catalog.Catalog
	Paths   *archive.Resolver
	// Root is the directory LOB file references resolve against when no
	// lobFolder applies.
	Root string
}

// Simple encodes a primitive cell. A file attribute points at external
// LOB content; otherwise the element text is the value. textify forces
// text rendering for values embedded in JSON structures.
func (e *Encoder) Simple(el *xml.Node, aff Affinity, textify bool, folders *lob.Resolver, treePath string) string {
	if el == nil {
		return EmptyLiteral
	}

	if file := el.Attr("file", ""); file != "" {
		return e.fileLiteral(file, aff, textify, folders, treePath)
	}

	text := el.Text()
	if aff.IsNumeric() && !textify {
		text = strings.TrimSpace(text)
		if text == "" {
			return EmptyLiteral
		}
		return text
	}

	decoded, hasSpecials := DecodeEscapes(text)
	if hasSpecials {
		return TextBlobLiteral(decoded)
	}
	return QuoteLiteral(text)
}

// Complex encodes a cell whose column references the catalog entry
// (typeSchema, typeName). Arrays become json_array calls, UDTs become
// json_object calls, distinct types collapse to their base primitive.
func (e *Encoder) Complex(el *xml.Node, typeSchema, typeName string, depth int, textify bool, folders *lob.Resolver, treePath string) string {
	if el == nil {
		return EmptyLiteral
	}
	if depth > MaxDepth {
		logging.Warn("type nesting exceeds limit, emitting empty value",
			"type", typeSchema+"."+typeName, "path", treePath, "limit", MaxDepth)
		return EmptyLiteral
	}

	node, ok := e.Catalog.Resolve(typeSchema, typeName)
	if !ok {
		logging.Warn("unresolved type reference, treating as primitive",
			"type", typeSchema+"."+typeName, "path", treePath)
		return e.Simple(el, Classify(typeName), true, folders, treePath)
	}

	switch node.Category {
	case catalog.CategoryDistinct:
		base := node.Attributes[0]
		return e.Simple(el, Classify(base.Base), textify, folders, treePath)

	case catalog.CategoryArray:
		elem := node.Attributes[0]
		card := elem.Cardinality
		// The node itself carries the array shape; the element dispatches
		// on its own type.
		elem.Cardinality = 0
		parts := make([]string, 0, card)
		for i := 1; i <= card; i++ {
			slot := "a" + strconv.Itoa(i)
			parts = append(parts, e.attribute(elem, el.FindFirstBFS(slot),
				depth+1, folders, treePath+"/"+slot))
		}
		return "json_array(" + strings.Join(parts, ", ") + ")"

	default: // catalog.CategoryUDT
		pairs := make([]string, 0, len(node.Attributes))
		for i, attr := range node.Attributes {
			slot := "u" + strconv.Itoa(i+1)
			value := e.attribute(attr, el.FindFirstBFS(slot),
				depth+1, folders, treePath+"/"+slot)
			pairs = append(pairs, QuoteLiteral(attr.Name)+", "+value)
		}
		return "json_object(" + strings.Join(pairs, ", ") + ")"
	}
}

// attribute encodes one attribute or array element value. Values nested
// inside JSON structures are always textified.
func (e *Encoder) attribute(attr catalog.TypeAttribute, el *xml.Node, depth int, folders *lob.Resolver, treePath string) string {
	switch attr.ExtendedCategory() {
	case catalog.ExtUDT:
		return e.Complex(el, attr.TypeSchema, attr.TypeName, depth, true, folders, treePath)
	case catalog.ExtDistinct:
		return e.Simple(el, Classify(attr.Base), true, folders, treePath)
	case catalog.ExtSimple:
		return e.Simple(el, Classify(attr.Type), true, folders, treePath)
	default:
		return e.Simple(el, Text, true, folders, treePath)
	}
}

// ColumnAffinity determines the storage class a column declares. Columns
// of complex types surface as TEXT since their values are JSON text;
// distinct types take the affinity of their base primitive.
func (e *Encoder) ColumnAffinity(attr catalog.TypeAttribute) Affinity {
	switch attr.ExtendedCategory() {
	case catalog.ExtSimple:
		return Classify(attr.Type)
	case catalog.ExtDistinct:
		return Classify(attr.Base)
	case catalog.ExtUDT:
		node, ok := e.Catalog.Resolve(attr.TypeSchema, attr.TypeName)
		if !ok {
			return Classify(attr.TypeName)
		}
		if node.Category == catalog.CategoryDistinct {
			return Classify(node.Attributes[0].Base)
		}
		return Text
	default:
		return Text
	}
}

// fileLiteral reads external LOB content and renders it as a blob or text
// literal. Any failure degrades to an empty value for the cell.
func (e *Encoder) fileLiteral(file string, aff Affinity, textify bool, folders *lob.Resolver, treePath string) string {
	base := e.Root
	if folders != nil {
		if abs, ok := folders.Resolve(treePath); ok {
			base = abs
		}
	}

	full := path.Join(base, file)
	resolved, err := e.Paths.Resolve(full)
	if err != nil {
		logging.UnresolvedLob(treePath, file, err)
		return EmptyLiteral
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		logging.UnresolvedLob(treePath, file, err)
		return EmptyLiteral
	}

	if aff == Text || textify {
		return TextBlobLiteral(data)
	}
	return BlobLiteral(data)
}
