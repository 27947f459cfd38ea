package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"testing/fstest"
)

const migrationsDir = "../../db/migrations"

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(filepath.FromSlash(migrationsDir))
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[int]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		version, _ := strconv.Atoi(match[1])
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %d", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version := 1; version <= len(byVersion); version++ {
		dirs, ok := byVersion[version]
		if !ok {
			t.Fatalf("migration versions must be contiguous, missing %04d", version)
		}
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %04d must include both up and down files", version)
		}
	}
}

func TestPendingCandidatesOrdersUpFilesOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_cards.up.sql":    {Data: []byte("SELECT 2")},
		"0001_boards.up.sql":   {Data: []byte("SELECT 1")},
		"0001_boards.down.sql": {Data: []byte("SELECT 0")},
		"README.md":            {Data: []byte("notes")},
		"archive/0000.up.sql":  {Data: []byte("SELECT -1")},
	}

	got, err := pendingCandidates(fsys)
	if err != nil {
		t.Fatalf("pendingCandidates: %v", err)
	}
	want := []string{"0001_boards.up.sql", "0002_cards.up.sql"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
