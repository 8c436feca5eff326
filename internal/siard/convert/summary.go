package convert

import (
	"path"
	"strconv"
	"strings"

	"github.com/siard-tools/siard2sql/core/errors"
	"github.com/siard-tools/siard2sql/internal/archive"
	"github.com/siard-tools/siard2sql/internal/fileutil"
)

// Summarize reads only the metadata document and reports the archive
// format version and per-schema table/row/cell counts, without touching
// any content documents. Row counts come from each table's declared rows
// element; cells are rows times declared columns.
func Summarize(opts Options, paths *archive.Resolver) (*Result, error) {
	c, err := New(opts, paths)
	if err != nil {
		return nil, err
	}

	doc, err := c.loadXML(path.Join(opts.Root, "header", "metadata.xml"))
	if err != nil {
		return nil, errors.Wrap(err, "no metadata")
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.NewParse("siard", opts.Root, "metadata document has no root element")
	}

	result := &Result{Version: root.Attr("version", "")}
	if result.Version == "" {
		result.Version = fileutil.SiardVersionFromDir(opts.Root)
	}

	for _, schemaXML := range childElems(root.FindFirst("schemas"), "schema") {
		name := schemaXML.ChildText("name")
		if c.filter != nil && !c.filter.MatchString(name) {
			continue
		}
		stats := SchemaStats{Name: name}
		for _, tableXML := range childElems(schemaXML.FindFirst("tables"), "table") {
			stats.Tables++
			rows, _ := strconv.ParseInt(strings.TrimSpace(tableXML.ChildText("rows")), 10, 64)
			stats.Rows += rows
			columns := int64(len(childElems(tableXML.FindFirst("columns"), "column")))
			stats.Cells += rows * columns
		}
		result.Schemas = append(result.Schemas, stats)
	}
	return result, nil
}
