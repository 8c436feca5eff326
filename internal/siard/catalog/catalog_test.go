package catalog

import (
	"testing"

	"github.com/siard-tools/siard2sql/core/xml"
)

func parseNode(t *testing.T, src string) *xml.Node {
	t.Helper()
	doc, err := xml.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc.Root()
}

func TestExtendedCategory(t *testing.T) {
	tests := []struct {
		name string
		attr TypeAttribute
		want ExtendedCategory
	}{
		{"simple", TypeAttribute{Type: "INTEGER"}, ExtSimple},
		{"array", TypeAttribute{Type: "INTEGER", Cardinality: 4}, ExtArray},
		{"udt reference", TypeAttribute{TypeSchema: "s", TypeName: "t"}, ExtUDT},
		{"distinct", TypeAttribute{Base: "INTEGER"}, ExtDistinct},
		{"unknown", TypeAttribute{Name: "x"}, ExtUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.attr.ExtendedCategory(); got != tt.want {
				t.Errorf("ExtendedCategory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterDistinct(t *testing.T) {
	c := New()
	err := c.Register("s1", parseNode(t, "<type><name>ukey</name><category>distinct</category><base>INTEGER</base></type>"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	node, ok := c.Resolve("s1", "ukey")
	if !ok {
		t.Fatal("distinct type not resolvable")
	}
	if node.Category != CategoryDistinct {
		t.Errorf("category = %v, want %v", node.Category, CategoryDistinct)
	}
	if len(node.Attributes) != 1 || node.Attributes[0].Base != "INTEGER" {
		t.Errorf("attributes = %+v, want single base INTEGER", node.Attributes)
	}
}

func TestRegisterUDT(t *testing.T) {
	c := New()
	err := c.Register("s1", parseNode(t, `<type>
		<name>addr</name>
		<category>udt</category>
		<attributes>
			<attribute><name>street</name><type>CHARACTER VARYING(30)</type></attribute>
			<attribute><name>tags</name><type>CHARACTER VARYING(10)</type><cardinality>3</cardinality></attribute>
			<attribute><name>other</name><typeName>sibling</typeName></attribute>
		</attributes>
	</type>`))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	node, ok := c.Resolve("s1", "addr")
	if !ok {
		t.Fatal("udt not resolvable")
	}
	if len(node.Attributes) != 3 {
		t.Fatalf("attributes = %d, want 3", len(node.Attributes))
	}

	// The inline array attribute is rewritten to reference a synthetic
	// array entry in the declaring schema.
	arr := node.Attributes[1]
	if arr.ExtendedCategory() != ExtUDT {
		t.Fatalf("array attribute not rewritten to a reference: %+v", arr)
	}
	arrNode, ok := c.Resolve(arr.TypeSchema, arr.TypeName)
	if !ok {
		t.Fatal("synthetic array entry not resolvable")
	}
	if arrNode.Category != CategoryArray {
		t.Errorf("category = %v, want %v", arrNode.Category, CategoryArray)
	}
	if arrNode.Attributes[0].Cardinality != 3 {
		t.Errorf("cardinality = %d, want 3", arrNode.Attributes[0].Cardinality)
	}

	// An omitted typeSchema defaults to the declaring schema.
	if ref := node.Attributes[2]; ref.TypeSchema != "s1" {
		t.Errorf("typeSchema = %q, want s1", ref.TypeSchema)
	}
}

func TestRegisterDistinctInsideUDT(t *testing.T) {
	c := New()
	err := c.Register("s1", parseNode(t, `<type>
		<name>bad</name>
		<category>udt</category>
		<attributes>
			<attribute><name>a</name><base>INTEGER</base></attribute>
		</attributes>
	</type>`))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The violating attribute degrades to unknown; conversion continues.
	node, _ := c.Resolve("s1", "bad")
	if got := node.Attributes[0].ExtendedCategory(); got != ExtUnknown {
		t.Errorf("ExtendedCategory = %v, want %v", got, ExtUnknown)
	}
}

func TestRegisterUnknownCategory(t *testing.T) {
	c := New()
	if err := c.Register("s1", parseNode(t, "<type><name>x</name><category>weird</category></type>")); err == nil {
		t.Error("expected error for unknown category")
	}
	if err := c.Register("s1", parseNode(t, "<type><category>udt</category></type>")); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestRegisterArrayNamesNeverReused(t *testing.T) {
	c := New()
	el := TypeAttribute{Type: "INTEGER", Cardinality: 2}

	n1 := c.RegisterArray("s1", "col", el)
	n2 := c.RegisterArray("s1", "col", el)
	if n1 == n2 {
		t.Fatalf("synthesized names collide: %q", n1)
	}

	// Resolving either name always yields the same node.
	for _, name := range []string{n1, n2} {
		a, ok := c.Resolve("s1", name)
		if !ok {
			t.Fatalf("array %q not resolvable", name)
		}
		b, _ := c.Resolve("s1", name)
		if a != b {
			t.Errorf("Resolve(%q) not stable", name)
		}
	}

	// Counters are schema-scoped.
	n3 := c.RegisterArray("s2", "col", el)
	if _, ok := c.Resolve("s2", n3); !ok {
		t.Errorf("array %q not resolvable in its schema", n3)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestResolveMissIsPrimitive(t *testing.T) {
	c := New()
	if _, ok := c.Resolve("s1", "INTEGER"); ok {
		t.Error("primitive name must not resolve")
	}
}
