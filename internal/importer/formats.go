package importer

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// ImportFile detects the file format from its extension (falling back to
// content sniffing) and imports it into a collection derived from the
// filename unless collection is non-empty.
func ImportFile(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	filePath string,
	opts *ImportOptions,
) (*ImportReport, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".gz" {
		base := strings.TrimSuffix(filePath, ".gz")
		ext = strings.ToLower(filepath.Ext(base))
	}

	if collection == "" {
		base := filepath.Base(filePath)
		collection = sanitizeCollectionName(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	switch ext {
	case ".csv":
		return ImportCSV(ctx, eng, collection, f, opts)
	case ".tsv", ".tab":
		if opts == nil {
			opts = &ImportOptions{}
		}
		opts.DelimiterCandidates = []rune{'\t'}
		return ImportCSV(ctx, eng, collection, f, opts)
	case ".ndjson", ".jsonl":
		return ImportNDJSON(ctx, eng, collection, f, opts)
	case ".bson":
		return ImportBSON(ctx, eng, collection, f)
	default:
		return importByContent(ctx, eng, collection, f, opts)
	}
}

// importByContent sniffs the first bytes of a file with no recognized
// extension and dispatches to NDJSON or CSV accordingly.
func importByContent(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	f *os.File,
	opts *ImportOptions,
) (*ImportReport, error) {
	br := bufio.NewReader(f)
	peek, _ := br.Peek(512)
	trimmed := strings.TrimSpace(string(peek))

	if strings.HasPrefix(trimmed, "{") {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		return ImportNDJSON(ctx, eng, collection, f, opts)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return ImportCSV(ctx, eng, collection, f, opts)
}

func sanitizeCollectionName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		name = "imported"
	}
	return name
}

// ImportNDJSON imports newline-delimited JSON objects, one document per line.
func ImportNDJSON(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	src io.Reader,
	opts *ImportOptions,
) (*ImportReport, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	eng.CreateCollection(collection)
	if opts.Truncate {
		if err := truncateCollection(eng, collection); err != nil {
			return nil, fmt.Errorf("truncate collection: %w", err)
		}
	}

	report := &ImportReport{Errors: make([]string, 0)}
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for lineNum := 1; sc.Scan(); lineNum++ {
		select {
		case <-ctx.Done():
			report.Errors = append(report.Errors, "import cancelled")
			return report, nil
		default:
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v (skipped)", lineNum, err))
			report.Skipped++
			continue
		}

		delete(fields, "_id")
		if _, err := eng.InsertDocument(collection, engine.NewBSONMap(fields), engine.Persistent, nil); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: insert: %v", lineNum, err))
			report.Skipped++
			continue
		}
		report.Inserted++
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("read NDJSON: %w", err)
	}

	return report, nil
}

// ImportBSON imports the gob-encoded WaspFrame stream produced by
// exporter.ExportBSON: a 4-byte little-endian length prefix followed by a
// gob-encoded frame, repeated until EOF.
func ImportBSON(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	src io.Reader,
) (*ImportReport, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	eng.CreateCollection(collection)

	report := &ImportReport{Errors: make([]string, 0)}
	br := bufio.NewReader(src)

	for recNum := 1; ; recNum++ {
		select {
		case <-ctx.Done():
			report.Errors = append(report.Errors, "import cancelled")
			return report, nil
		default:
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])

		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}

		frame, err := engine.DecodeFrame(payload)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("record %d: decode: %v (skipped)", recNum, err))
			report.Skipped++
			continue
		}
		if frame.Op == nil || frame.Op.Document == nil {
			report.Errors = append(report.Errors, fmt.Sprintf("record %d: not a document frame (skipped)", recNum))
			report.Skipped++
			continue
		}

		if _, err := eng.InsertDocument(collection, frame.Op.Document.Data, engine.Persistent, nil); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("record %d: insert: %v", recNum, err))
			report.Skipped++
			continue
		}
		report.Inserted++
	}

	return report, nil
}
