package exporter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// Options controls exporter behavior across all three output formats.
type Options struct {
	PrettyJSON   bool
	CSVNoHeader  bool
	CSVDelimiter rune
	// CSVColumns fixes the column set/order for ExportCSV. When empty,
	// columns are inferred as the union of fields across all documents,
	// sorted for a stable header.
	CSVColumns []string
}

func valueToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func unionColumns(docs []*engine.Document) []string {
	seen := make(map[string]struct{})
	for _, d := range docs {
		for _, k := range d.Data.Keys() {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// ExportCSV writes documents as CSV, one row per document.
func ExportCSV(w *bufio.Writer, docs []*engine.Document, opts Options) error {
	csvw := csv.NewWriter(w)
	if opts.CSVDelimiter != 0 {
		csvw.Comma = opts.CSVDelimiter
	}

	cols := opts.CSVColumns
	if len(cols) == 0 {
		cols = unionColumns(docs)
	}

	if !opts.CSVNoHeader {
		if err := csvw.Write(append([]string{"_id"}, cols...)); err != nil {
			return err
		}
	}
	for _, d := range docs {
		row := make([]string, 0, len(cols)+1)
		row = append(row, d.ID)
		for _, c := range cols {
			v, _ := d.Data.Get(c)
			row = append(row, valueToString(v))
		}
		if err := csvw.Write(row); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

func documentToMap(d *engine.Document) map[string]interface{} {
	m := make(map[string]interface{}, len(d.Data.Keys())+1)
	m["_id"] = d.ID
	for _, k := range d.Data.Keys() {
		v, _ := d.Data.Get(k)
		m[k] = v
	}
	return m
}

// ExportNDJSON writes one JSON object per line, one per document.
func ExportNDJSON(w *bufio.Writer, docs []*engine.Document, opts Options) error {
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	for _, d := range docs {
		if err := enc.Encode(documentToMap(d)); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ExportBSON encodes documents with gob, the idiomatic Go stand-in for
// a real BSON encoder absent from the dependency pack (same decision
// recorded for internal/wasp/snapshot.go and internal/engine/frame.go).
func ExportBSON(w *bufio.Writer, docs []*engine.Document) error {
	for _, d := range docs {
		payload, err := engine.EncodeFrame(&engine.WaspFrame{Op: &engine.Operation{
			Kind:       engine.OpInsert,
			DocumentID: d.ID,
			Document:   d,
		}})
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		putUint32(lenBuf[:], uint32(len(payload)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return w.Flush()
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
