package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestOpenBlankPath(t *testing.T) {
	w, err := Open("  ")
	if err != nil || w != nil {
		t.Fatalf("w=%v err=%v", w, err)
	}
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("nil writer should discard: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestWriteAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Write(map[string]any{"i": i, "note": "<a&b>"}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.Write(map[string]int{"late": 1}); err == nil {
		t.Fatalf("expected write after close to fail")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d not json: %v", lines, err)
		}
		if rec["note"] != "<a&b>" {
			t.Fatalf("note=%v", rec["note"])
		}
		lines++
	}
	if lines != 50 {
		t.Fatalf("lines=%d want 50", lines)
	}
}

func TestWriteRejectsNil(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "out.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	if err := w.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}
