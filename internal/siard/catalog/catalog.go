// Package catalog stores every complex (non-primitive) type declared in a
// SIARD archive, keyed by declaring schema and type name. UDTs may
// reference types declared later in document order or in another schema,
// so registration of all schemas completes before any content encoding.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/siard-tools/siard2sql/core/xml"
	"github.com/siard-tools/siard2sql/internal/logging"
)

// Category classifies a catalog entry.
type Category int

const (
	// CategoryDistinct is a named alias over a single primitive base type.
	CategoryDistinct Category = iota
	// CategoryUDT is a composite type with an ordered attribute list.
	CategoryUDT
	// CategoryArray is a fixed-cardinality element sequence. Arrays are
	// anonymous in the source; the catalog synthesizes their names.
	CategoryArray
)

func (c Category) String() string {
	switch c {
	case CategoryDistinct:
		return "distinct"
	case CategoryUDT:
		return "udt"
	case CategoryArray:
		return "array"
	}
	return "unknown"
}

// ExtendedCategory classifies how a TypeAttribute declares its type.
type ExtendedCategory int

const (
	// ExtUnknown means no type field is populated.
	ExtUnknown ExtendedCategory = iota
	// ExtSimple is a primitive type name.
	ExtSimple
	// ExtArray is an inline array (cardinality > 0).
	ExtArray
	// ExtUDT is a (schema, name) reference to a catalog entry.
	ExtUDT
	// ExtDistinct carries a base primitive.
	ExtDistinct
)

// TypeAttribute describes how one column, UDT attribute, or array element
// declares its type. Exactly one of the variants is meaningfully populated:
// a primitive type name, a (TypeSchema, TypeName) reference, a Base
// primitive, or a Cardinality > 0. Immutable once built from its source
// declaration.
type TypeAttribute struct {
	Name        string
	Type        string // primitive type name, e.g. "CHARACTER VARYING(20)"
	TypeSchema  string // with TypeName, a reference to a catalog entry
	TypeName    string
	Base        string // base primitive of a distinct type
	Cardinality int    // >0 marks an array
}

// ExtendedCategory reports which variant of the attribute is populated.
func (a TypeAttribute) ExtendedCategory() ExtendedCategory {
	switch {
	case a.Cardinality > 0:
		return ExtArray
	case a.TypeName != "":
		return ExtUDT
	case a.Base != "":
		return ExtDistinct
	case a.Type != "":
		return ExtSimple
	}
	return ExtUnknown
}

// TypeNode is a catalog entry. For distinct types the attribute list holds
// exactly one synthetic attribute carrying the base primitive; for arrays,
// one synthetic attribute carrying the element type and cardinality; for
// UDTs, one attribute per declared member in declaration order. The order
// determines the positional tags (u1, u2, ...) matched against row data.
type TypeNode struct {
	Schema     string
	Name       string
	Category   Category
	Attributes []TypeAttribute
}

type key struct {
	schema, name string
}

// Catalog maps (schema, type name) to TypeNode. Append-only during a run.
type Catalog struct {
	nodes    map[key]*TypeNode
	arraySeq map[string]int // per-schema counter for synthesized array names
}

// New creates an empty catalog for one conversion run.
func New() *Catalog {
	return &Catalog{
		nodes:    make(map[key]*TypeNode),
		arraySeq: make(map[string]int),
	}
}

// AttributeFromXML builds a TypeAttribute from a column, attribute or
// field declaration element.
func AttributeFromXML(node *xml.Node) TypeAttribute {
	attr := TypeAttribute{
		Name:       node.ChildText("name"),
		Type:       node.ChildText("type"),
		TypeSchema: node.ChildText("typeSchema"),
		TypeName:   node.ChildText("typeName"),
		Base:       node.ChildText("base"),
	}
	if card := node.ChildText("cardinality"); card != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(card)); err == nil && n > 0 {
			attr.Cardinality = n
		}
	}
	return attr
}

// Register classifies a declared type element (category distinct or udt)
// and inserts its TypeNode under the declaring schema. Array-typed UDT
// attributes are registered as synthetic array nodes first, then rewritten
// to reference them. A distinct declaration inside a UDT attribute is a
// specification violation: the attribute degrades to unknown and
// conversion continues.
func (c *Catalog) Register(schema string, typeXML *xml.Node) error {
	name := typeXML.ChildText("name")
	if name == "" {
		return fmt.Errorf("type declaration in schema %q has no name", schema)
	}
	category := strings.ToLower(typeXML.ChildText("category"))

	switch category {
	case "distinct":
		c.insert(&TypeNode{
			Schema:   schema,
			Name:     name,
			Category: CategoryDistinct,
			Attributes: []TypeAttribute{
				{Name: name, Base: typeXML.ChildText("base")},
			},
		})
		return nil

	case "udt":
		node := &TypeNode{Schema: schema, Name: name, Category: CategoryUDT}
		if attrs := typeXML.FindFirst("attributes"); attrs != nil {
			for _, attrXML := range attrs.FindAll("attribute", 1) {
				attr := AttributeFromXML(attrXML)
				if attr.TypeName != "" && attr.TypeSchema == "" {
					attr.TypeSchema = schema
				}
				switch attr.ExtendedCategory() {
				case ExtArray:
					attr = c.NormalizeArray(schema, name+"_"+attr.Name, attr)
				case ExtDistinct:
					logging.Warn("distinct declaration inside UDT attribute",
						"schema", schema, "udt", name, "attribute", attr.Name)
					attr = TypeAttribute{Name: attr.Name}
				}
				node.Attributes = append(node.Attributes, attr)
			}
		}
		c.insert(node)
		return nil
	}

	return fmt.Errorf("type %q in schema %q has unknown category %q", name, schema, category)
}

// NormalizeArray registers the inline array described by attr as a new
// synthetic catalog entry in schema and returns a rewritten attribute
// referencing it, so arrays are treated uniformly with named types.
func (c *Catalog) NormalizeArray(schema, hint string, attr TypeAttribute) TypeAttribute {
	synth := c.RegisterArray(schema, hint, attr)
	return TypeAttribute{
		Name:       attr.Name,
		TypeSchema: schema,
		TypeName:   synth,
	}
}

// RegisterArray inserts a synthetic array TypeNode for an inline array
// declaration and returns its synthesized name. Names are derived from a
// schema-scoped monotonic counter and never reused, so independently
// declared anonymous arrays cannot collide.
func (c *Catalog) RegisterArray(schema, hint string, element TypeAttribute) string {
	c.arraySeq[schema]++
	name := fmt.Sprintf("%s__a%d", hint, c.arraySeq[schema])
	element.Name = hint
	c.insert(&TypeNode{
		Schema:     schema,
		Name:       name,
		Category:   CategoryArray,
		Attributes: []TypeAttribute{element},
	})
	return name
}

// Resolve looks up a type reference. Absence is not an error: it means the
// reference names a primitive type, and callers treat it as such.
func (c *Catalog) Resolve(schema, name string) (*TypeNode, bool) {
	node, ok := c.nodes[key{schema, name}]
	return node, ok
}

// Len returns the number of registered entries.
func (c *Catalog) Len() int {
	return len(c.nodes)
}

func (c *Catalog) insert(node *TypeNode) {
	c.nodes[key{node.Schema, node.Name}] = node
}
