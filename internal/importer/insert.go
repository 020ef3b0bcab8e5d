package importer

import (
	"context"
	"fmt"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// truncateCollection deletes every existing document in a collection before import.
func truncateCollection(eng *engine.Engine, collection string) error {
	docs, err := eng.GetAllDocuments(collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := eng.DeleteDocument(collection, d.ID); err != nil {
			return fmt.Errorf("delete %s: %w", d.ID, err)
		}
	}
	return nil
}

// insertAllRecords converts each CSV record to a document and inserts it,
// stopping early on context cancellation.
func insertAllRecords(
	ctx context.Context,
	eng *engine.Engine,
	collection string,
	colNames []string,
	colKinds []ValueKind,
	allRecords [][]string,
	opts *ImportOptions,
) (inserted int64, skipped int64, errs []string) {
	errs = make([]string, 0)

	for rowNum, rec := range allRecords {
		select {
		case <-ctx.Done():
			errs = append(errs, "import cancelled")
			return inserted, skipped, errs
		default:
		}

		fields, err := convertRow(rec, colNames, colKinds, opts)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v (skipped)", rowNum+1, err))
			skipped++
			continue
		}

		if _, err := eng.InsertDocument(collection, engine.NewBSONMap(fields), engine.Persistent, nil); err != nil {
			errs = append(errs, fmt.Sprintf("row %d: insert: %v", rowNum+1, err))
			skipped++
			continue
		}
		inserted++
	}

	return inserted, skipped, errs
}

// convertRow converts a CSV record into the field map for a BSONMap document.
func convertRow(rec []string, colNames []string, colKinds []ValueKind, opts *ImportOptions) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(colNames))

	for i, name := range colNames {
		var val string
		if i < len(rec) {
			val = rec[i]
		}

		converted, err := convertValue(val, colKinds[i], opts.DateTimeFormats, opts.NullLiterals)
		if err != nil {
			if opts.StrictTypes {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			converted = val
		}
		if converted == nil {
			continue
		}
		fields[name] = converted
	}

	return fields, nil
}
