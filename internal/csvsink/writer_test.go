package csvsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/saviobatista/ais-receiver/internal/testutils"
	"github.com/saviobatista/ais-receiver/internal/types"
)

func readRows(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path) // #nosec G304 - controlled test path
	if err != nil {
		t.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	rows, err := gocsv.CSVToMaps(f)
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	return rows
}

func TestWriter_WritesConfiguredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ais.csv")
	w, err := New(path, []string{"t", "mmsi", "x", "y", "sog", "cog"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	msgs := []types.Message{
		testutils.MockMessage(477553000, at, map[string]any{"x": -122.345833, "y": 47.582833, "sog": 0.0}),
		testutils.MockMessage(369190000, at, map[string]any{"name": "OCEAN TRAILER"}),
	}
	for _, msg := range msgs {
		if err := w.Write(ctx, msg); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["mmsi"] != "477553000" || rows[0]["x"] != "-122.345833" || rows[0]["cog"] != "" {
		t.Errorf("Unexpected first row %v", rows[0])
	}
	if rows[1]["mmsi"] != "369190000" || rows[1]["x"] != "" {
		t.Errorf("Unexpected second row %v", rows[1])
	}
}

func TestWriter_SkipsMessagesWithoutFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ais.csv")
	w, err := New(path, []string{"callsign", "destination"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := w.Write(context.Background(), types.Message{"mmsi": int64(1), "sog": 3.0}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	_ = w.Close()

	content, _ := os.ReadFile(path)
	if strings.TrimSpace(string(content)) != "callsign,destination" {
		t.Errorf("Expected only the header, got %q", content)
	}
}

func TestWriter_HeaderOnlyForNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ais.csv")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		w, err := New(path, []string{"mmsi"})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if err := w.Write(ctx, types.Message{"mmsi": int64(100 + i)}); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		_ = w.Close()
	}

	content, _ := os.ReadFile(path)
	if got := string(content); got != "mmsi\n100\n101\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "a.csv"), nil); err == nil {
		t.Error("New() should fail without fields")
	}
	if _, err := New("/nonexistent/dir/a.csv", []string{"mmsi"}); err == nil {
		t.Error("New() should fail for an unwritable path")
	}
}
