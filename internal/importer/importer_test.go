package importer

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nexuslite/nexuslite/internal/engine"
	"github.com/nexuslite/nexuslite/internal/exporter"
)

func openTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(filepath.Join(t.TempDir(), "db.wasp"))
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestImportCSVInfersTypesAndInsertsDocuments(t *testing.T) {
	e := openTestEngine(t)
	csvData := "name,age,active\nalice,30,true\nbob,25,false\n"

	opts := &ImportOptions{HeaderMode: "present", TypeInference: true}
	report, err := ImportCSV(context.Background(), e, "users", strings.NewReader(csvData), opts)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if report.Inserted != 2 {
		t.Fatalf("expected 2 documents inserted, got %d (errors: %v)", report.Inserted, report.Errors)
	}

	docs, err := e.GetAllDocuments("users")
	if err != nil {
		t.Fatalf("GetAllDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents in collection, got %d", len(docs))
	}

	for _, d := range docs {
		age, ok := d.Data.Get("age")
		if !ok {
			t.Fatal("expected age field to survive import")
		}
		if _, ok := age.(int64); !ok {
			t.Fatalf("expected age to be inferred as int64, got %T", age)
		}
		active, ok := d.Data.Get("active")
		if !ok {
			t.Fatal("expected active field to survive import")
		}
		if _, ok := active.(bool); !ok {
			t.Fatalf("expected active to be inferred as bool, got %T", active)
		}
	}
}

func TestImportCSVTruncateClearsExistingDocuments(t *testing.T) {
	e := openTestEngine(t)
	e.CreateCollection("users")
	if _, err := e.InsertDocument("users", engine.NewBSONMap(map[string]interface{}{"name": "stale"}), engine.Persistent, nil); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	opts := &ImportOptions{Truncate: true, HeaderMode: "present"}
	if _, err := ImportCSV(context.Background(), e, "users", strings.NewReader("name\nalice\n"), opts); err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}

	docs, err := e.GetAllDocuments("users")
	if err != nil {
		t.Fatalf("GetAllDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected truncate to leave exactly the newly imported document, got %d", len(docs))
	}
	if name, _ := docs[0].Data.Get("name"); name != "alice" {
		t.Fatalf("expected surviving document to be alice, got %v", name)
	}
}

func TestImportNDJSONInsertsOneDocumentPerLine(t *testing.T) {
	e := openTestEngine(t)
	input := `{"name":"alice","age":30}
{"name":"bob","age":25}
`
	report, err := ImportNDJSON(context.Background(), e, "users", strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ImportNDJSON: %v", err)
	}
	if report.Inserted != 2 {
		t.Fatalf("expected 2 documents inserted, got %d", report.Inserted)
	}
}

func TestImportBSONRoundTripsExportedDocuments(t *testing.T) {
	src := openTestEngine(t)
	src.CreateCollection("users")
	if _, err := src.InsertDocument("users", engine.NewBSONMap(map[string]interface{}{"name": "alice"}), engine.Persistent, nil); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	docs, err := src.GetAllDocuments("users")
	if err != nil {
		t.Fatalf("GetAllDocuments: %v", err)
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := exporter.ExportBSON(w, docs); err != nil {
		t.Fatalf("ExportBSON: %v", err)
	}

	dst := openTestEngine(t)
	report, err := ImportBSON(context.Background(), dst, "users", &buf)
	if err != nil {
		t.Fatalf("ImportBSON: %v", err)
	}
	if report.Inserted != 1 {
		t.Fatalf("expected 1 document imported, got %d", report.Inserted)
	}

	restored, err := dst.GetAllDocuments("users")
	if err != nil {
		t.Fatalf("GetAllDocuments: %v", err)
	}
	if len(restored) != 1 {
		t.Fatalf("expected 1 restored document, got %d", len(restored))
	}
	if name, _ := restored[0].Data.Get("name"); name != "alice" {
		t.Fatalf("expected restored document to have name alice, got %v", name)
	}
}
