package exporter

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/nexuslite/nexuslite/internal/engine"
)

func makeSample() []*engine.Document {
	d1 := engine.NewDocument(engine.NewBSONMap(map[string]interface{}{"name": "alice", "active": true}), engine.Persistent, nil)
	d2 := engine.NewDocument(engine.NewBSONMap(map[string]interface{}{"name": "bob", "active": false}), engine.Persistent, nil)
	return []*engine.Document{d1, d2}
}

func TestExportCSVIncludesHeaderAndRows(t *testing.T) {
	docs := makeSample()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := ExportCSV(w, docs, Options{}); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	out := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte("_id,active,name")) {
		t.Fatalf("expected sorted header, got: %s", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte("alice")) || !bytes.Contains(buf.Bytes(), []byte("bob")) {
		t.Fatalf("expected both documents rendered, got: %s", out)
	}
}

func TestExportNDJSONOneObjectPerLine(t *testing.T) {
	docs := makeSample()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := ExportNDJSON(w, docs, Options{}); err != nil {
		t.Fatalf("ExportNDJSON: %v", err)
	}

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d", len(lines))
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(lines[0], &obj); err != nil {
		t.Fatalf("line 0 not valid JSON: %v", err)
	}
	if _, ok := obj["_id"]; !ok {
		t.Fatal("expected _id field in NDJSON output")
	}
}

func TestExportBSONRoundTripsViaFrameDecode(t *testing.T) {
	docs := makeSample()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := ExportBSON(w, docs); err != nil {
		t.Fatalf("ExportBSON: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty BSON-stand-in output")
	}
	data := buf.Bytes()
	n := binary.LittleEndian.Uint32(data[:4])
	frame, err := engine.DecodeFrame(data[4 : 4+n])
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.Op == nil || frame.Op.Document == nil || frame.Op.Document.ID != docs[0].ID {
		t.Fatalf("expected first frame to carry document %s", docs[0].ID)
	}
}
