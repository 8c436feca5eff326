// Package lob resolves the external-file base directory for every nested
// sub-element of a column (array slots, UDT attributes). SIARD lets a
// lobFolder be declared at archive, schema, table, column and field level;
// a nested element's effective folder is only as specific as it declares,
// falling back to its enclosing scope.
package lob

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/siard-tools/siard2sql/core/xml"
	"github.com/siard-tools/siard2sql/internal/siard/catalog"
)

// maxWalkDepth bounds the pre-order walk of the declared sub-structure,
// since the SIARD specification does not guarantee acyclicity of UDT
// references.
const maxWalkDepth = 16

// arraySlotRe matches array sub-field names such as CARRAY[3].
var arraySlotRe = regexp.MustCompile(`\[([0-9]+)\]$`)

type entry struct {
	own      string // the element's own declared folder
	combined string // own combined with its ancestors'
	abs      string // combined, resolved against the archive root
}

// Resolver holds the precomputed folder for every tree path of one column.
// Built once per column, before any row is processed.
type Resolver struct {
	archiveRoot string
	entries     map[string]entry
}

// Combine merges a parent folder with an element's own declaration: an
// absolute own folder wins outright, an empty one inherits the parent
// unchanged, and a relative one joins under the parent.
func Combine(parent, own string) string {
	switch {
	case strings.HasPrefix(own, "/"):
		return own
	case own == "":
		return parent
	case parent == "":
		return own
	default:
		return path.Join(parent, own)
	}
}

// Build walks the column's declared sub-structure and records the combined
// folder for every tree path. parentFolder is the folder accumulated from
// the archive, schema and table levels.
func Build(cat *catalog.Catalog, attr catalog.TypeAttribute, colXML *xml.Node, parentFolder, archiveRoot string) *Resolver {
	r := &Resolver{
		archiveRoot: archiveRoot,
		entries:     make(map[string]entry),
	}
	r.set("", "", parentFolder)

	colName := colXML.ChildText("name")
	colFolder := colXML.ChildText("lobFolder")
	colPath := "/" + colName
	combined := Combine(parentFolder, colFolder)
	r.set(colPath, colFolder, combined)

	r.walk(cat, attr, colXML.FindFirst("fields"), colPath, combined, 0)
	return r
}

// Resolve returns the absolute folder for an exact tree path. A missing
// entry means no override exists anywhere in that path, and the caller
// falls back to the archive root.
func (r *Resolver) Resolve(treePath string) (string, bool) {
	e, ok := r.entries[treePath]
	if !ok || e.combined == "" {
		return "", false
	}
	return e.abs, true
}

func (r *Resolver) set(treePath, own, combined string) {
	abs := combined
	if combined != "" && !strings.HasPrefix(combined, "/") {
		abs = path.Join(r.archiveRoot, combined)
	}
	r.entries[treePath] = entry{own: own, combined: combined, abs: abs}
}

// walk recurses over the declared structure of attr, pairing catalog
// attributes with the column's <fields> declarations to derive positional
// tags: a<i> for array slots, u<i> for UDT attributes.
func (r *Resolver) walk(cat *catalog.Catalog, attr catalog.TypeAttribute, fieldsXML *xml.Node, treePath, parentFolder string, depth int) {
	if fieldsXML == nil || depth > maxWalkDepth {
		return
	}
	if attr.ExtendedCategory() != catalog.ExtUDT {
		return
	}
	node, ok := cat.Resolve(attr.TypeSchema, attr.TypeName)
	if !ok {
		return
	}

	fields := fieldsXML.FindAll("field", 1)

	switch node.Category {
	case catalog.CategoryArray:
		element := node.Attributes[0]
		// The node carries the array shape; the element recurses on its
		// own type.
		element.Cardinality = 0
		for _, field := range fields {
			name := field.ChildText("name")
			m := arraySlotRe.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			childPath := treePath + "/a" + m[1]
			combined := Combine(parentFolder, field.ChildText("lobFolder"))
			r.set(childPath, field.ChildText("lobFolder"), combined)
			r.walk(cat, element, field.FindFirst("fields"), childPath, combined, depth+1)
		}

	case catalog.CategoryUDT:
		byName := make(map[string]*xml.Node, len(fields))
		for _, field := range fields {
			byName[field.ChildText("name")] = field
		}
		for i, uattr := range node.Attributes {
			field, ok := byName[uattr.Name]
			if !ok {
				continue
			}
			childPath := treePath + "/u" + strconv.Itoa(i+1)
			combined := Combine(parentFolder, field.ChildText("lobFolder"))
			r.set(childPath, field.ChildText("lobFolder"), combined)
			r.walk(cat, uattr, field.FindFirst("fields"), childPath, combined, depth+1)
		}

	case catalog.CategoryDistinct:
		// Transparent alias over a primitive: no sub-structure.
	}
}
