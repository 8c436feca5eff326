// Package convert walks a SIARD archive's metadata document and emits the
// SQL statement stream: CREATE TABLE per table, INSERT per row, and
// CREATE UNIQUE INDEX per candidate key, with table names deduplicated
// across schemas.
package convert

import (
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/siard-tools/siard2sql/core/errors"
	"github.com/siard-tools/siard2sql/core/xml"
	"github.com/siard-tools/siard2sql/internal/archive"
	"github.com/siard-tools/siard2sql/internal/fileutil"
	"github.com/siard-tools/siard2sql/internal/logging"
	"github.com/siard-tools/siard2sql/internal/siard/catalog"
	"github.com/siard-tools/siard2sql/internal/siard/encode"
	"github.com/siard-tools/siard2sql/internal/siard/lob"
)

// cellRe matches row cell tags: c1, c2, ... The number is the 1-based
// column position.
var cellRe = regexp.MustCompile(`^c[0-9]+$`)

// Options configures one conversion run.
type Options struct {
	// Root is the input root: an extracted SIARD directory, or a container
	// path the nested-path resolver can open.
	Root string
	// SchemaFilter is a case-insensitive regular expression over schema
	// names; empty converts every schema.
	SchemaFilter string
	// Verbose gates SQL comment banners: 1 adds schema/table banners,
	// 2 adds row banners, 3 adds per-cell diagnostics.
	Verbose int
	// Out receives the SQL statement stream.
	Out io.Writer
}

// SkippedTable records a table skipped because its name was already
// emitted under another schema.
type SkippedTable struct {
	Schema      string
	Table       string
	FirstSchema string
}

// SchemaStats counts what one schema contributed to the run.
type SchemaStats struct {
	Name   string
	Tables int64
	Rows   int64
	Cells  int64
}

// Result is the side-channel summary of a run.
type Result struct {
	Version string
	Schemas []SchemaStats
	Skipped []SkippedTable
}

// WriteSummary renders the human-readable run summary.
func (r *Result) WriteSummary(w io.Writer) {
	version := r.Version
	if version == "" {
		version = "unknown"
	}
	fmt.Fprintf(w, "SIARD format version: %s\n", version)
	for _, s := range r.Schemas {
		fmt.Fprintf(w, "schema %-20s tables=%d rows=%d cells=%d\n",
			"'"+s.Name+"'", s.Tables, s.Rows, s.Cells)
	}
	for _, sk := range r.Skipped {
		fmt.Fprintf(w, "skipped table '%s' in schema '%s': already emitted from schema '%s'\n",
			sk.Table, sk.Schema, sk.FirstSchema)
	}
}

// columnDesc is built once per table and reused across all its rows.
type columnDesc struct {
	name    string
	attr    catalog.TypeAttribute
	aff     encode.Affinity
	folders *lob.Resolver
}

// Converter drives a single run. Single-threaded: one schema, table, row
// and column at a time.
type Converter struct {
	opts   Options
	paths  *archive.Resolver
	filter *regexp.Regexp
	cat    *catalog.Catalog
	enc    *encode.Encoder

	archiveFolder string
	indexSeq      int
	firstSchema   map[string]string
	result        *Result
	writeErr      error
}

// New prepares a run. An invalid schema filter is rejected before any
// work starts.
func New(opts Options, paths *archive.Resolver) (*Converter, error) {
	c := &Converter{
		opts:        opts,
		paths:       paths,
		cat:         catalog.New(),
		firstSchema: make(map[string]string),
		result:      &Result{},
	}
	if opts.SchemaFilter != "" {
		re, err := regexp.Compile("(?i)" + opts.SchemaFilter)
		if err != nil {
			return nil, errors.NewValidation("schema filter",
				fmt.Sprintf("invalid regular expression %q: %v", opts.SchemaFilter, err))
		}
		c.filter = re
	}
	c.enc = &encode.Encoder{
		Catalog: c.cat,
		Paths:   paths,
		Root:    opts.Root,
	}
	return c, nil
}

// Run converts the archive. Only an unusable metadata document or an
// unwritable output stream aborts the run; everything else degrades to a
// warning and an empty literal.
func (c *Converter) Run() (*Result, error) {
	doc, err := c.loadXML(path.Join(c.opts.Root, "header", "metadata.xml"))
	if err != nil {
		return nil, errors.Wrap(err, "no metadata")
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.NewParse("siard", c.opts.Root, "metadata document has no root element")
	}

	c.result.Version = root.Attr("version", "")
	if c.result.Version == "" {
		c.result.Version = fileutil.SiardVersionFromDir(c.opts.Root)
	}
	c.archiveFolder = root.ChildText("lobFolder")

	schemas := childElems(root.FindFirst("schemas"), "schema")

	// Pass 1: register every complex type before encoding anything;
	// forward and cross-schema references are legal.
	for _, schemaXML := range schemas {
		name := schemaXML.ChildText("name")
		for _, typeXML := range childElems(schemaXML.FindFirst("types"), "type") {
			if err := c.cat.Register(name, typeXML); err != nil {
				logging.Warn("skipping unregistrable type declaration",
					"schema", name, "error", err)
			}
		}
	}
	logging.Debug("type catalog populated", "entries", c.cat.Len())

	if c.opts.Verbose >= 1 {
		c.emit("-- siard version=%s\n", c.result.Version)
	}

	// Pass 2: emit schemas in document order.
	for _, schemaXML := range schemas {
		name := schemaXML.ChildText("name")
		if c.filter != nil && !c.filter.MatchString(name) {
			continue
		}
		if c.opts.Verbose >= 1 {
			c.emit("-- schema='%s'\n", name)
		}

		stats := SchemaStats{Name: name}
		folder := schemaXML.ChildText("folder")
		parentFolder := lob.Combine(c.archiveFolder, schemaXML.ChildText("lobFolder"))
		for _, tableXML := range childElems(schemaXML.FindFirst("tables"), "table") {
			c.convertTable(name, folder, parentFolder, tableXML, &stats)
			if c.writeErr != nil {
				return nil, c.writeErr
			}
		}
		c.result.Schemas = append(c.result.Schemas, stats)
	}

	for _, sk := range c.result.Skipped {
		logging.DuplicateTable(sk.Schema, sk.Table, sk.FirstSchema)
	}
	return c.result, nil
}

func (c *Converter) convertTable(schemaName, schemaFolder, parentFolder string, tableXML *xml.Node, stats *SchemaStats) {
	name := tableXML.ChildText("name")
	folder := tableXML.ChildText("folder")
	if folder == "" {
		folder = name
	}

	// First occurrence wins, by document order across schemas.
	if first, dup := c.firstSchema[name]; dup {
		c.result.Skipped = append(c.result.Skipped, SkippedTable{
			Schema:      schemaName,
			Table:       name,
			FirstSchema: first,
		})
		return
	}
	c.firstSchema[name] = schemaName
	stats.Tables++

	if c.opts.Verbose >= 1 {
		c.emit("-- table='%s'\n", name)
	}

	tableFolder := lob.Combine(parentFolder, tableXML.ChildText("lobFolder"))
	cols := c.buildColumns(schemaName, name, tableFolder, tableXML)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE '%s' (\n", name)
	for i, col := range cols {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "   '%s' %s", col.name, col.aff)
	}
	if pk := keyColumns(tableXML.FindFirst("primaryKey")); len(pk) > 0 {
		fmt.Fprintf(&b, ",\n   PRIMARY KEY (%s)", strings.Join(pk, ", "))
	}
	b.WriteString("\n);\n")
	c.emit("%s", b.String())

	c.convertRows(schemaFolder, folder, name, cols, stats)

	for _, ckXML := range childElems(tableXML.FindFirst("candidateKeys"), "candidateKey") {
		keyName := ckXML.ChildText("name")
		keyCols := keyColumns(ckXML)
		if len(keyCols) == 0 {
			continue
		}
		c.emit("CREATE UNIQUE INDEX unique_idx%d_%s ON %s (%s);\n",
			c.indexSeq, keyName, name, strings.Join(keyCols, ", "))
		c.indexSeq++
	}
}

// buildColumns resolves every column declaration into a descriptor:
// normalized type attribute, affinity and lob-folder resolver.
func (c *Converter) buildColumns(schemaName, tableName, parentFolder string, tableXML *xml.Node) []columnDesc {
	var cols []columnDesc
	for _, colXML := range childElems(tableXML.FindFirst("columns"), "column") {
		attr := catalog.AttributeFromXML(colXML)
		if attr.TypeName != "" && attr.TypeSchema == "" {
			attr.TypeSchema = schemaName
		}
		if attr.ExtendedCategory() == catalog.ExtArray {
			attr = c.cat.NormalizeArray(schemaName, tableName+"_"+attr.Name, attr)
		}
		if attr.ExtendedCategory() == catalog.ExtUnknown {
			logging.UnsupportedType(schemaName, tableName, attr.Name, colXML.ChildText("type"))
		}
		cols = append(cols, columnDesc{
			name:    attr.Name,
			attr:    attr,
			aff:     c.enc.ColumnAffinity(attr),
			folders: lob.Build(c.cat, attr, colXML, parentFolder, c.opts.Root),
		})
	}
	return cols
}

// convertRows loads the table's content document and emits one INSERT per
// row. An unavailable or unparseable content document skips the table's
// rows but not the rest of the run.
func (c *Converter) convertRows(schemaFolder, tableFolder, tableName string, cols []columnDesc, stats *SchemaStats) {
	docPath := path.Join(c.opts.Root, "content", schemaFolder, tableFolder, tableFolder+".xml")
	doc, err := c.loadXML(docPath)
	if err != nil {
		logging.Error("table content unavailable", "table", tableName, "path", docPath, "error", err)
		return
	}
	root := doc.Root()
	if root == nil {
		logging.Error("table content has no root element", "table", tableName, "path", docPath)
		return
	}

	for n, rowXML := range root.FindAll("row", 2) {
		if c.opts.Verbose >= 2 {
			c.emit("-- row %d of '%s'\n", n+1, tableName)
		}
		values := make([]string, len(cols))
		for i := range values {
			values[i] = encode.EmptyLiteral
		}
		for _, cellXML := range rowXML.FindAllRegex(cellRe, 1) {
			idx, err := strconv.Atoi(cellXML.Name()[1:])
			if err != nil || idx < 1 || idx > len(cols) {
				logging.Error("cell position out of range, abandoning table content",
					"table", tableName, "cell", cellXML.Name(), "columns", len(cols))
				return
			}
			col := cols[idx-1]
			if c.opts.Verbose >= 3 {
				c.emit("-- cell %s column='%s' affinity=%s\n", cellXML.Name(), col.name, col.aff)
			}
			values[idx-1] = c.encodeCell(col, cellXML)
		}
		c.emit("INSERT INTO '%s' VALUES (%s);\n", tableName, strings.Join(values, ",\n"))
		stats.Rows++
		stats.Cells += int64(len(cols))
	}
}

func (c *Converter) encodeCell(col columnDesc, el *xml.Node) string {
	treePath := "/" + col.name
	if col.attr.ExtendedCategory() == catalog.ExtUDT {
		return c.enc.Complex(el, col.attr.TypeSchema, col.attr.TypeName, 0, false, col.folders, treePath)
	}
	return c.enc.Simple(el, col.aff, false, col.folders, treePath)
}

// loadXML resolves a possibly container-nested path and parses it.
func (c *Converter) loadXML(p string) (*xml.Document, error) {
	resolved, err := c.paths.Resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.NewIO("read", resolved, err)
	}
	return xml.Parse(data)
}

// emit writes to the output stream; the first write failure aborts the
// run at the next table boundary.
func (c *Converter) emit(format string, args ...any) {
	if c.writeErr != nil {
		return
	}
	if _, err := fmt.Fprintf(c.opts.Out, format, args...); err != nil {
		c.writeErr = errors.NewIO("write", "sql output", err)
	}
}

// keyColumns collects the column names of a primaryKey or candidateKey
// element.
func keyColumns(keyXML *xml.Node) []string {
	if keyXML == nil {
		return nil
	}
	var names []string
	for _, colXML := range keyXML.FindAll("column", 1) {
		if name := colXML.Text(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// childElems returns parent's direct child elements with the given tag,
// or nil when parent is absent.
func childElems(parent *xml.Node, tag string) []*xml.Node {
	if parent == nil {
		return nil
	}
	return parent.FindAll(tag, 1)
}
