package convert

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siard-tools/siard2sql/internal/archive"
)

const testMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<siardArchive version="2.2">
  <dbname>db</dbname>
  <schemas>
    <schema>
      <name>S1</name>
      <folder>schema0</folder>
      <types>
        <type>
          <name>addr</name>
          <category>udt</category>
          <attributes>
            <attribute><name>street</name><type>CHARACTER VARYING(30)</type></attribute>
            <attribute><name>zip</name><type>INTEGER</type></attribute>
          </attributes>
        </type>
      </types>
      <tables>
        <table>
          <name>T</name>
          <folder>table0</folder>
          <columns>
            <column><name>id</name><type>INTEGER</type></column>
            <column><name>name</name><type>CHARACTER VARYING(20)</type></column>
            <column><name>price</name><type>DECIMAL(10,2)</type></column>
            <column><name>home</name><typeName>addr</typeName></column>
          </columns>
          <primaryKey><name>pk</name><column>id</column></primaryKey>
          <candidateKeys>
            <candidateKey><name>byname</name><column>name</column><column>price</column></candidateKey>
          </candidateKeys>
          <rows>2</rows>
        </table>
      </tables>
    </schema>
    <schema>
      <name>S2</name>
      <folder>schema1</folder>
      <tables>
        <table>
          <name>T</name>
          <folder>table0</folder>
          <columns><column><name>x</name><type>INTEGER</type></column></columns>
          <rows>1</rows>
        </table>
        <table>
          <name>U</name>
          <folder>table1</folder>
          <columns>
            <column><name>y</name><type>BLOB</type><lobFolder>lobs</lobFolder></column>
          </columns>
          <rows>1</rows>
        </table>
      </tables>
    </schema>
  </schemas>
</siardArchive>`

const testTableT = `<table>
  <row><c1>1</c1><c2>Ada</c2><c3>9.50</c3><c4><u1>Main</u1><u2>12</u2></c4></row>
  <row><c1>2</c1><c2>Bob</c2></row>
</table>`

const testTableU = `<table>
  <row><c1 file="y1.bin"/></row>
</table>`

// fixtureFiles is the extracted SIARD tree every test builds from.
var fixtureFiles = map[string]string{
	"header/metadata.xml":                testMetadata,
	"content/schema0/table0/table0.xml":  testTableT,
	"content/schema1/table1/table1.xml":  testTableU,
	"lobs/y1.bin":                        "\xca\xfe",
	"header/siardversion/2.2/.gitignore": "",
}

func writeFixtureDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range fixtureFiles {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func writeFixtureContainer(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range fixtureFiles {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "db.siard")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func runConversion(t *testing.T, root string, opts Options) (string, *Result) {
	t.Helper()
	table := archive.NewTable()
	t.Cleanup(func() { table.CloseAll() })
	paths := archive.NewResolver(table, t.TempDir())

	var out strings.Builder
	opts.Root = root
	opts.Out = &out

	c, err := New(opts, paths)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), result
}

func TestConvertDirectory(t *testing.T) {
	sql, result := runConversion(t, writeFixtureDir(t), Options{})

	if result.Version != "2.2" {
		t.Errorf("version = %q, want 2.2", result.Version)
	}

	// Exactly one CREATE TABLE 'T': the S2 copy is skipped.
	if n := strings.Count(sql, "CREATE TABLE 'T'"); n != 1 {
		t.Errorf("CREATE TABLE 'T' appears %d times, want 1", n)
	}
	wantCreate := "CREATE TABLE 'T' (\n" +
		"   'id' INTEGER,\n" +
		"   'name' TEXT,\n" +
		"   'price' NUMERIC,\n" +
		"   'home' TEXT,\n" +
		"   PRIMARY KEY (id)\n" +
		");\n"
	if !strings.Contains(sql, wantCreate) {
		t.Errorf("missing expected CREATE TABLE block in:\n%s", sql)
	}

	wantRow1 := "INSERT INTO 'T' VALUES (1,\n'Ada',\n9.50,\njson_object('street', 'Main', 'zip', '12'));\n"
	if !strings.Contains(sql, wantRow1) {
		t.Errorf("missing row 1 INSERT in:\n%s", sql)
	}

	// Short rows fill the trailing columns with ''.
	wantRow2 := "INSERT INTO 'T' VALUES (2,\n'Bob',\n'',\n'');\n"
	if !strings.Contains(sql, wantRow2) {
		t.Errorf("missing row 2 INSERT in:\n%s", sql)
	}

	// One unique index with a run-unique generated name.
	if !strings.Contains(sql, "CREATE UNIQUE INDEX unique_idx0_byname ON T (name, price);\n") {
		t.Errorf("missing candidate key index in:\n%s", sql)
	}

	// External LOB content becomes a blob literal.
	if !strings.Contains(sql, "INSERT INTO 'U' VALUES (X'CAFE');\n") {
		t.Errorf("missing lob INSERT in:\n%s", sql)
	}

	// The cross-schema duplicate is reported once, naming the keeper.
	if len(result.Skipped) != 1 {
		t.Fatalf("skipped = %+v, want one entry", result.Skipped)
	}
	sk := result.Skipped[0]
	if sk.Schema != "S2" || sk.Table != "T" || sk.FirstSchema != "S1" {
		t.Errorf("skipped = %+v", sk)
	}

	if len(result.Schemas) != 2 {
		t.Fatalf("schema stats = %+v", result.Schemas)
	}
	s1 := result.Schemas[0]
	if s1.Tables != 1 || s1.Rows != 2 || s1.Cells != 8 {
		t.Errorf("S1 stats = %+v, want tables=1 rows=2 cells=8", s1)
	}
	s2 := result.Schemas[1]
	if s2.Tables != 1 || s2.Rows != 1 || s2.Cells != 1 {
		t.Errorf("S2 stats = %+v, want tables=1 rows=1 cells=1", s2)
	}
}

func TestConvertContainer(t *testing.T) {
	// The same archive read through the member cache, without a prior
	// full extraction.
	sql, result := runConversion(t, writeFixtureContainer(t), Options{})

	if result.Version != "2.2" {
		t.Errorf("version = %q, want 2.2", result.Version)
	}
	if n := strings.Count(sql, "CREATE TABLE 'T'"); n != 1 {
		t.Errorf("CREATE TABLE 'T' appears %d times, want 1", n)
	}
	if !strings.Contains(sql, "INSERT INTO 'U' VALUES (X'CAFE');\n") {
		t.Errorf("missing lob INSERT in:\n%s", sql)
	}
}

func TestConvertSchemaFilter(t *testing.T) {
	sql, result := runConversion(t, writeFixtureDir(t), Options{SchemaFilter: "s1"})

	if strings.Contains(sql, "CREATE TABLE 'U'") {
		t.Error("filtered-out schema was converted")
	}
	if !strings.Contains(sql, "CREATE TABLE 'T'") {
		t.Error("matching schema was not converted")
	}
	if len(result.Skipped) != 0 {
		t.Errorf("skipped = %+v, want none", result.Skipped)
	}
	if len(result.Schemas) != 1 || result.Schemas[0].Name != "S1" {
		t.Errorf("schema stats = %+v", result.Schemas)
	}
}

func TestConvertVerboseBanners(t *testing.T) {
	sql, _ := runConversion(t, writeFixtureDir(t), Options{Verbose: 2})

	for _, want := range []string{
		"-- siard version=2.2\n",
		"-- schema='S1'\n",
		"-- table='T'\n",
		"-- row 1 of 'T'\n",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing banner %q", want)
		}
	}
}

func TestNewRejectsInvalidFilter(t *testing.T) {
	_, err := New(Options{Root: t.TempDir(), SchemaFilter: "("}, archive.NewResolver(archive.NewTable(), t.TempDir()))
	if err == nil {
		t.Error("expected error for invalid filter expression")
	}
}

func TestRunFailsWithoutMetadata(t *testing.T) {
	table := archive.NewTable()
	defer table.CloseAll()
	c, err := New(Options{Root: t.TempDir(), Out: &strings.Builder{}}, archive.NewResolver(table, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Run(); err == nil {
		t.Error("expected error for missing metadata document")
	}
}

func TestSummarize(t *testing.T) {
	table := archive.NewTable()
	defer table.CloseAll()
	paths := archive.NewResolver(table, t.TempDir())

	result, err := Summarize(Options{Root: writeFixtureDir(t)}, paths)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Version != "2.2" {
		t.Errorf("version = %q, want 2.2", result.Version)
	}
	if len(result.Schemas) != 2 {
		t.Fatalf("schema stats = %+v", result.Schemas)
	}
	// Declared counts: S1 has one 4-column table with 2 rows, S2 has two
	// 1-column tables with 1 row each.
	s1, s2 := result.Schemas[0], result.Schemas[1]
	if s1.Tables != 1 || s1.Rows != 2 || s1.Cells != 8 {
		t.Errorf("S1 stats = %+v", s1)
	}
	if s2.Tables != 2 || s2.Rows != 2 || s2.Cells != 2 {
		t.Errorf("S2 stats = %+v", s2)
	}

	var out strings.Builder
	result.WriteSummary(&out)
	if !strings.Contains(out.String(), "SIARD format version: 2.2") {
		t.Errorf("summary output = %q", out.String())
	}
}
