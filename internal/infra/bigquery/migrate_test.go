package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0002_analysis_runs.sql", true, 2, "analysis_runs"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseMigrationFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("ParseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("got (%d, %q), want (%d, %q)", version, name, tt.version, tt.name)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	body := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64);"
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte(body)},
		"0001_first.sql":  {Data: []byte(body)},
		"README.md":       {Data: []byte("ignored")},
	}

	a, err := LoadMigrations(fsys, "proj", "ds")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(a) != 2 || a[0].Version != 1 || a[1].Version != 2 {
		t.Fatalf("migrations = %+v", a)
	}
	if !strings.Contains(a[0].SQL, "`proj.ds.t`") {
		t.Errorf("placeholders not substituted: %s", a[0].SQL)
	}

	b, err := LoadMigrations(fsys, "other", "dataset")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if a[0].Checksum != b[0].Checksum {
		t.Error("checksum should not depend on the target dataset")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := EmbeddedMigrations("proj", DefaultDataset)
	if err != nil {
		t.Fatalf("EmbeddedMigrations() error = %v", err)
	}
	if len(migrations) < 3 {
		t.Fatalf("expected the archive schema, got %d migrations", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%s still has placeholders", m.Filename)
		}
	}
	if !strings.Contains(migrations[1].SQL, analysisRunsTable) || !strings.Contains(migrations[2].SQL, modelOutputsTable) {
		t.Error("archive tables missing from the embedded schema")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := Pending(all, []AppliedMigration{{Version: 1}, {Version: 3}})
	if len(got) != 1 || got[0].Version != 2 {
		t.Errorf("Pending() = %+v", got)
	}
	if len(Pending(all, nil)) != 3 {
		t.Error("nothing applied should leave everything pending")
	}
}
