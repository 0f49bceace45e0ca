package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestSQLiteArea(t *testing.T, table string) *SQLiteArea {
	t.Helper()
	a, err := OpenSQLite(filepath.Join(t.TempDir(), "state.sqlite"), table)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteArea_Contract(t *testing.T) {
	testAreaContract(t, newTestSQLiteArea(t, ""))
}

func TestSQLiteArea_ID(t *testing.T) {
	a := newTestSQLiteArea(t, "prefs")
	if !strings.HasPrefix(a.ID(), "sqlite:") || !strings.HasSuffix(a.ID(), "state.sqlite#prefs") {
		t.Errorf("ID = %q", a.ID())
	}
}

func TestSQLiteArea_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")

	a, err := OpenSQLite(path, "")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer a.Close()
	b, err := OpenSQLite(path, "")
	if err != nil {
		t.Fatalf("second OpenSQLite error: %v", err)
	}
	defer b.Close()

	if a.ID() != b.ID() {
		t.Errorf("handles on one file should share an ID: %q vs %q", a.ID(), b.ID())
	}
	if err := a.Set("username", `"Magoo"`); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	v, ok, err := b.Get("username")
	if err != nil || !ok || v != `"Magoo"` {
		t.Errorf("Get through second handle = %q, %v, %v", v, ok, err)
	}
}

func TestSQLiteArea_InvalidTable(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"), "drop table;")
	if err == nil {
		t.Error("invalid table name should fail")
	}
}

func TestSQLiteArea_Closed(t *testing.T) {
	a := newTestSQLiteArea(t, "")
	a.Close()
	if err := a.Set("k", "v"); err != ErrClosed {
		t.Errorf("Set after close = %v, want ErrClosed", err)
	}
}
