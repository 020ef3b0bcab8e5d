// Package importer provides automatic file import with type detection for nexuslite.
//
// It supports importing documents from CSV/TSV, NDJSON, and the gob-encoded
// BSON stand-in produced by internal/exporter, landing each row/line as a
// document in an internal/engine collection. CSV import auto-detects
// delimiters, headers, encodings, and column types to minimize manual
// configuration.
//
// Features:
//   - Auto-detect delimiter: ',', ';', '\t', '|' (configurable)
//   - Auto-detect header row (configurable override)
//   - Encoding: UTF-8, UTF-8 BOM, UTF-16LE/BE (BOM-based)
//   - Transparent GZIP input
//   - Smart type inference (bool, int, float, time, text)
//   - One engine insert per document (inserts are not batched)
package importer

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// ImportOptions configures the importer behavior. All fields are optional.
type ImportOptions struct {
	// BatchSize defaults to 1000 but does not affect insertion: every
	// record is inserted with its own engine call.
	BatchSize int

	// NullLiterals are treated as a missing field (case-insensitive, trimmed).
	// Defaults: "", "null", "na", "n/a", "none", "#n/a"
	NullLiterals []string

	// Truncate deletes every existing document in the target collection before import.
	Truncate bool

	// HeaderMode controls header detection:
	//   "auto" (default)  -> heuristic decides based on data analysis
	//   "present"         -> first row is always treated as header
	//   "absent"          -> first row is data, synthetic column names generated (col_1, col_2, ...)
	HeaderMode string

	// DelimiterCandidates tested during auto-detection. Default: , ; \t |
	DelimiterCandidates []rune

	// SampleBytes caps the amount of data used for detection (default 128KB).
	SampleBytes int

	// SampleRecords caps the number of records analyzed for detection (default 500).
	SampleRecords int

	// TypeInference enables automatic type detection. It is off unless
	// set to true; when off, every column is imported as text.
	TypeInference bool

	// DateTimeFormats lists datetime layouts to try during type detection.
	DateTimeFormats []string

	// StrictTypes when true skips rows that fail conversion and records them
	// as errors instead of falling back to the raw string value.
	StrictTypes bool
}

// ImportReport returns metadata about an import operation.
type ImportReport struct {
	Inserted  int64
	Skipped   int64
	Delimiter rune     // Detected or configured delimiter (CSV/TSV only)
	HadHeader bool     // Whether a header row was detected/configured (CSV/TSV only)
	Encoding  string   // Detected encoding: "utf-8", "utf-8-bom", "utf-16le", "utf-16be"
	Columns   []string // Final column names used (CSV/TSV only)
	Errors    []string // Non-fatal errors encountered during import
}

// ImportCSV imports delimited data (CSV/TSV) from a reader into a collection.
//
// It auto-detects the file format, reads every record into memory, and
// then inserts the documents one at a time, handling various encodings,
// compressed input (gzip), and type inference.
func ImportCSV(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	src io.Reader,
	opts *ImportOptions,
) (*ImportReport, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	report := &ImportReport{Errors: make([]string, 0)}

	r := maybeGzip(src)

	br := bufio.NewReader(r)
	sampleBytes, _ := br.Peek(maxInt(opts.SampleBytes, 16))
	enc, hasBOM := detectEncoding(sampleBytes)
	report.Encoding = enc

	var rr io.Reader
	switch enc {
	case "utf-16le", "utf-16be":
		all, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("read UTF-16 stream: %w", err)
		}
		utf8data, err := decodeUTF16All(all, enc == "utf-16be")
		if err != nil {
			return nil, fmt.Errorf("decode UTF-16: %w", err)
		}
		rr = bytes.NewReader(utf8data)
	default:
		if hasBOM {
			if _, err := br.Discard(3); err != nil {
				return nil, fmt.Errorf("discard UTF-8 BOM: %w", err)
			}
		}
		rr = br
	}

	sr := bufio.NewReader(rr)
	peek := peekN(sr, opts.SampleBytes)
	lines := splitUniversal(string(peek))

	delim := detectDelimiter(lines, candidateDelims(opts.DelimiterCandidates))
	report.Delimiter = delim

	records := parseRecords(lines, delim, opts.SampleRecords)
	hasHeader := decideHeader(records, opts.HeaderMode)
	report.HadHeader = hasHeader

	csvr := csv.NewReader(sr)
	csvr.Comma = delim
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true
	csvr.TrimLeadingSpace = true

	firstRec, err := csvr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty input")
		}
		return nil, fmt.Errorf("read first record: %w", err)
	}

	var colNames []string
	var firstDataRow []string
	if hasHeader {
		colNames = sanitizeColumnNames(firstRec)
	} else {
		colNames = generateColumnNames(len(firstRec))
		firstDataRow = firstRec
	}
	report.Columns = colNames

	allRecords := make([][]string, 0)
	if firstDataRow != nil {
		allRecords = append(allRecords, firstDataRow)
	}
	for {
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("read error: %v", err))
			continue
		}
		allRecords = append(allRecords, rec)
	}

	var colKinds []ValueKind
	if opts.TypeInference {
		sampleSize := len(allRecords)
		if sampleSize > opts.SampleRecords {
			sampleSize = opts.SampleRecords
		}
		colKinds = inferColumnTypes(allRecords[:sampleSize], len(colNames), opts)
	} else {
		colKinds = make([]ValueKind, len(colNames))
	}

	eng.CreateCollection(collection)
	if opts.Truncate {
		if err := truncateCollection(eng, collection); err != nil {
			return nil, fmt.Errorf("truncate collection: %w", err)
		}
	}

	inserted, skipped, errs := insertAllRecords(ctx, eng, collection, colNames, colKinds, allRecords, opts)
	report.Inserted = inserted
	report.Skipped = skipped
	report.Errors = append(report.Errors, errs...)

	return report, nil
}

func applyDefaults(o *ImportOptions) {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if len(o.NullLiterals) == 0 {
		o.NullLiterals = []string{"", "null", "na", "n/a", "none", "#n/a"}
	}
	if o.HeaderMode == "" {
		o.HeaderMode = "auto"
	}
	if len(o.DelimiterCandidates) == 0 {
		o.DelimiterCandidates = []rune{',', ';', '\t', '|'}
	}
	if o.SampleBytes <= 0 {
		o.SampleBytes = 128 * 1024
	}
	if o.SampleRecords <= 0 {
		o.SampleRecords = 500
	}
	if len(o.DateTimeFormats) == 0 {
		o.DateTimeFormats = []string{
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02T15:04:05.999999999Z07:00",
			"2006-01-02",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"01/02/2006",
			"01/02/2006 15:04:05",
			"02.01.2006",
			"02.01.2006 15:04:05",
		}
	}
}

func maybeGzip(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) >= 2 && magic[0] == 0x1F && magic[1] == 0x8B {
		gr, err := gzip.NewReader(br)
		if err == nil {
			return gr
		}
	}
	return br
}

func detectEncoding(b []byte) (enc string, hasUTF8BOM bool) {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return "utf-8-bom", true
	}
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return "utf-16le", false
	}
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return "utf-16be", false
	}
	return "utf-8", false
}

func decodeUTF16All(b []byte, bigEndian bool) ([]byte, error) {
	if bigEndian && len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
	} else if !bigEndian && len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		b = b[2:]
	}

	if len(b)%2 != 0 {
		b = append(b, 0)
	}

	u16s := make([]uint16, len(b)/2)
	for i := 0; i < len(u16s); i++ {
		if bigEndian {
			u16s[i] = uint16(b[i*2])<<8 | uint16(b[i*2+1])
		} else {
			u16s[i] = uint16(b[i*2+1])<<8 | uint16(b[i*2])
		}
	}

	runes := utf16.Decode(u16s)
	return []byte(string(runes)), nil
}

func candidateDelims(c []rune) []rune {
	out := make([]rune, 0, len(c))
	for _, r := range c {
		if r != 0 {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []rune{',', ';', '\t', '|'}
	}
	return out
}

func peekN(br *bufio.Reader, n int) []byte {
	if n <= 0 {
		n = 1
	}
	b, _ := br.Peek(n)
	return b
}

func splitUniversal(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); {
		switch s[i] {
		case '\r':
			out = append(out, s[start:i])
			i++
			if i < len(s) && s[i] == '\n' {
				i++
			}
			start = i
		case '\n':
			out = append(out, s[start:i])
			i++
			start = i
		default:
			i++
		}
	}
	if start <= len(s) {
		out = append(out, s[start:])
	}
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func parseRecords(lines []string, delim rune, maxRecs int) [][]string {
	var out [][]string
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		rec := naiveSplitOutsideQuotes(ln, delim)
		out = append(out, rec)
		if maxRecs > 0 && len(out) >= maxRecs {
			break
		}
	}
	return out
}

func detectDelimiter(lines []string, cands []rune) rune {
	type score struct {
		cand   rune
		stdev  float64
		fields int
	}
	var best *score

	for _, cand := range cands {
		var counts []int
		seen := 0
		for _, ln := range lines {
			if strings.TrimSpace(ln) == "" {
				continue
			}
			if seen >= 200 {
				break
			}
			cnt := countDelimsOutsideQuotes(ln, cand)
			counts = append(counts, cnt+1)
			seen++
		}
		if len(counts) == 0 {
			continue
		}
		_, sd := meanStd(counts)
		fields := mode(counts)
		if fields <= 1 {
			continue
		}
		sc := score{cand: cand, stdev: sd, fields: fields}
		if best == nil || sc.stdev < best.stdev ||
			(math.Abs(sc.stdev-best.stdev) < 1e-9 && sc.fields > best.fields) {
			cp := sc
			best = &cp
		}
	}
	if best != nil {
		return best.cand
	}
	return ','
}

func countDelimsOutsideQuotes(ln string, delim rune) int {
	inQ := false
	count := 0
	for i, w := 0, 0; i < len(ln); i += w {
		r, size := utf8.DecodeRuneInString(ln[i:])
		w = size
		if r == '"' {
			peek, _ := utf8.DecodeRuneInString(ln[i+w:])
			if inQ && peek == '"' {
				i += w
				continue
			}
			inQ = !inQ
			continue
		}
		if !inQ && r == delim {
			count++
		}
	}
	return count
}

func naiveSplitOutsideQuotes(ln string, delim rune) []string {
	var out []string
	var sb strings.Builder
	inQ := false

	for i := 0; i < len(ln); {
		r, w := utf8.DecodeRuneInString(ln[i:])
		i += w
		if r == '\r' || r == '\n' {
			break
		}
		if r == '"' {
			if inQ {
				if i < len(ln) {
					r2, w2 := utf8.DecodeRuneInString(ln[i:])
					if r2 == '"' {
						i += w2
						sb.WriteRune('"')
						continue
					}
				}
				inQ = false
				continue
			} else if sb.Len() == 0 {
				inQ = true
				continue
			}
		}
		if !inQ && r == delim {
			out = append(out, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	out = append(out, sb.String())
	return out
}

func decideHeader(records [][]string, mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "present":
		return true
	case "absent":
		return false
	}

	if len(records) < 2 {
		return false
	}

	first := records[0]
	body := records[1:]
	cols := len(first)
	headerish := 0

	for c := 0; c < cols; c++ {
		headNum := looksNumeric(first[c])
		dataNum := 0
		rows := 0
		for _, r := range body {
			if c >= len(r) {
				continue
			}
			if looksNumeric(r[c]) {
				dataNum++
			}
			rows++
		}
		if rows > 0 && !headNum && float64(dataNum)/float64(rows) > 0.6 {
			headerish++
		}
	}
	return float64(headerish)/float64(cols) >= 0.5
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

func meanStd(vals []int) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += float64(v)
	}
	avg := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := float64(v) - avg
		ss += d * d
	}
	return avg, math.Sqrt(ss / float64(len(vals)))
}

func mode(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	m := map[int]int{}
	for _, v := range vals {
		m[v]++
	}
	type kv struct{ v, c int }
	var arr []kv
	for v, c := range m {
		arr = append(arr, kv{v, c})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c == arr[j].c {
			return arr[i].v > arr[j].v
		}
		return arr[i].c > arr[j].c
	})
	return arr[0].v
}

func sanitizeColumnNames(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		s = strings.TrimSpace(s)
		if s == "" {
			s = fmt.Sprintf("col_%d", i+1)
		}
		s = strings.Map(func(r rune) rune {
			if r == ' ' || r == '-' || r == '.' || r == '/' {
				return '_'
			}
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '_' {
				return r
			}
			return '_'
		}, s)
		out[i] = s
	}
	return out
}

func generateColumnNames(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
