package sqlite

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			"two statements",
			"CREATE TABLE t (a TEXT);\nINSERT INTO t VALUES ('x');",
			[]string{"CREATE TABLE t (a TEXT)", "INSERT INTO t VALUES ('x')"},
		},
		{
			"semicolon inside string",
			"INSERT INTO t VALUES ('a;b');",
			[]string{"INSERT INTO t VALUES ('a;b')"},
		},
		{
			"doubled quote inside string",
			"INSERT INTO t VALUES ('O''Brien; Esq');",
			[]string{"INSERT INTO t VALUES ('O''Brien; Esq')"},
		},
		{
			"line comment with semicolon",
			"-- banner; not a statement\nCREATE TABLE t (a TEXT);",
			[]string{"-- banner; not a statement\nCREATE TABLE t (a TEXT)"},
		},
		{
			"trailing statement without semicolon",
			"CREATE TABLE t (a TEXT)",
			[]string{"CREATE TABLE t (a TEXT)"},
		},
		{
			"empty script",
			"  \n ;; \n",
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.script)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitStatements = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExecScript(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "out.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	script := "CREATE TABLE 't' (\n   'a' TEXT,\n   'b' INTEGER\n);\n" +
		"INSERT INTO 't' VALUES ('x;y',\n1);\n" +
		"INSERT INTO 't' VALUES ('O''Brien',\n2);\n"
	if err := ExecScript(db, script); err != nil {
		t.Fatalf("ExecScript: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("row count = %d, want 2", count)
	}

	var a string
	if err := db.QueryRow("SELECT a FROM t WHERE b = 1").Scan(&a); err != nil {
		t.Fatalf("value query: %v", err)
	}
	if a != "x;y" {
		t.Errorf("a = %q, want x;y", a)
	}
}

func TestExecScriptRollsBackOnError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "out.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	script := "CREATE TABLE 't' ('a' TEXT);\nINSERT INTO nonexistent VALUES (1);"
	if err := ExecScript(db, script); err == nil {
		t.Fatal("expected error for bad statement")
	}

	// The whole script rolled back: the table must not exist.
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='t'").Scan(&count)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	if count != 0 {
		t.Error("CREATE TABLE survived a failed script")
	}
}

func TestDriverInfo(t *testing.T) {
	if DriverName() == "" {
		t.Error("empty driver name")
	}
	if got := DriverType(); got != "purego" && got != "cgo" {
		t.Errorf("DriverType() = %q", got)
	}
	if IsCGO() != (DriverType() == "cgo") {
		t.Error("IsCGO inconsistent with DriverType")
	}
}
