// Command siard2sql converts a SIARD archive into a stream of
// SQLite-compatible SQL statements.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/siard-tools/siard2sql/core/sqlite"
	"github.com/siard-tools/siard2sql/internal/archive"
	"github.com/siard-tools/siard2sql/internal/fileutil"
	"github.com/siard-tools/siard2sql/internal/logging"
	"github.com/siard-tools/siard2sql/internal/siard/convert"
)

const version = "1.0.0"

// CLI defines the command-line interface for siard2sql.
var CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format (text, json)"`
	Verbose   int    `short:"v" type:"counter" help:"Add SQL comment banners (repeat for more detail)"`

	Convert ConvertCmd `cmd:"" default:"withargs" help:"Convert a SIARD archive to SQL"`
	Schemas SchemasCmd `cmd:"" help:"Print archive version and per-schema statistics"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ConvertCmd converts a SIARD archive to SQL.
type ConvertCmd struct {
	Input   string `arg:"" help:"SIARD archive (.siard/.zip), extracted directory, or .tar.gz/.tar.xz bundle" type:"path"`
	Output  string `short:"o" help:"Write SQL to this file instead of stdout" type:"path"`
	Schema  string `short:"s" help:"Only convert schemas matching this case-insensitive regular expression"`
	DB      string `help:"Also execute the generated SQL into this SQLite database file" type:"path"`
	Extract bool   `help:"Fully extract a container input before converting instead of reading members on demand"`
}

// SchemasCmd prints the archive format version and per-schema
// table/row/cell counts from the metadata document alone.
type SchemasCmd struct {
	Input  string `arg:"" help:"SIARD archive, extracted directory, or bundle" type:"path"`
	Schema string `short:"s" help:"Only report schemas matching this case-insensitive regular expression"`
}

// VersionCmd prints version information.
type VersionCmd struct{}

// runEnv holds the resources one invocation owns: the scratch directory
// for nested-archive extraction and the archive member cache.
type runEnv struct {
	scratch *fileutil.ScratchDir
	table   *archive.Table
	paths   *archive.Resolver
}

func newRunEnv() (*runEnv, error) {
	scratch, err := fileutil.NewScratchDir()
	if err != nil {
		return nil, err
	}
	table := archive.NewTable()
	return &runEnv{
		scratch: scratch,
		table:   table,
		paths:   archive.NewResolver(table, scratch.Path()),
	}, nil
}

func (e *runEnv) Close() {
	if err := e.table.CloseAll(); err != nil {
		logging.Warn("closing archive handles", "error", err)
	}
	if err := e.scratch.Remove(); err != nil {
		logging.Warn("removing scratch directory", "error", err)
	}
}

// resolveInput normalizes the input into a root the converter can walk:
// directories pass through, tar bundles are unpacked into the scratch
// directory, and containers either pass through for resolver-backed
// access or are fully extracted when requested.
func (e *runEnv) resolveInput(input string, extract bool) (string, error) {
	if fileutil.IsDir(input) {
		return input, nil
	}
	if archive.IsBundle(input) {
		dest := filepath.Join(e.scratch.Path(), "bundle")
		if err := archive.ExtractBundle(input, dest); err != nil {
			return "", err
		}
		return findSiardRoot(dest)
	}
	if extract {
		dest := filepath.Join(e.scratch.Path(), "extracted")
		if err := e.table.ExtractAll(input, dest); err != nil {
			return "", err
		}
		return findSiardRoot(dest)
	}
	return input, nil
}

// findSiardRoot locates the directory holding header/metadata.xml: the
// extraction destination itself, or a single level below it when the
// archive wraps its tree in a top-level folder.
func findSiardRoot(dest string) (string, error) {
	if fileutil.IsSiardDir(dest) {
		return dest, nil
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dest, entry.Name())
		if fileutil.IsSiardDir(sub) {
			return sub, nil
		}
	}
	return "", fmt.Errorf("no header/metadata.xml found under %s", dest)
}

// Run converts the archive.
func (c *ConvertCmd) Run() error {
	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	root, err := env.resolveInput(c.Input, c.Extract)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	// Load mode needs the full script after emission, so it is captured
	// alongside the stream.
	var script strings.Builder
	if c.DB != "" {
		out = io.MultiWriter(out, &script)
	}

	conv, err := convert.New(convert.Options{
		Root:         root,
		SchemaFilter: c.Schema,
		Verbose:      CLI.Verbose,
		Out:          out,
	}, env.paths)
	if err != nil {
		return err
	}
	result, err := conv.Run()
	if err != nil {
		return err
	}
	result.WriteSummary(os.Stderr)

	if c.DB != "" {
		db, err := sqlite.Open(c.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := sqlite.ExecScript(db, script.String()); err != nil {
			return err
		}
		logging.Info("loaded SQL into database", "path", c.DB, "driver", sqlite.DriverType())
	}
	return nil
}

// Run prints per-schema statistics without reading any table content.
func (c *SchemasCmd) Run() error {
	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	root, err := env.resolveInput(c.Input, false)
	if err != nil {
		return err
	}

	result, err := convert.Summarize(convert.Options{
		Root:         root,
		SchemaFilter: c.Schema,
	}, env.paths)
	if err != nil {
		return err
	}
	result.WriteSummary(os.Stdout)
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("siard2sql %s\n", version)
	fmt.Printf("sqlite driver: %s (%s)\n", sqlite.DriverName(), sqlite.DriverType())
	return nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "info":
		return logging.LevelInfo
	case "error":
		return logging.LevelError
	default:
		return logging.LevelWarn
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("siard2sql"),
		kong.Description("SIARD archive to SQLite-compatible SQL converter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(parseLevel(CLI.LogLevel), format)

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
