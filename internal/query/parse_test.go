package query

import (
	"encoding/json"
	"testing"
)

func TestParseFilterJSONAcceptsEachKind(t *testing.T) {
	cases := []string{
		`{"true": true}`,
		`{"and": [{"true": true}, {"exists": {"path": "a", "exists": true}}]}`,
		`{"or": [{"true": true}, {"true": true}]}`,
		`{"not": {"true": true}}`,
		`{"exists": {"path": "a.b", "exists": false}}`,
		`{"in": {"path": "status", "values": ["open", "closed"]}}`,
		`{"nin": {"path": "status", "values": [1, 2, 3]}}`,
		`{"cmp": {"path": "age", "op": "gte", "value": 21}}`,
		`{"regex": {"path": "name", "pattern": "^a", "ci": true}}`,
	}
	for _, c := range cases {
		f, err := ParseFilterJSON([]byte(c))
		if err != nil {
			t.Fatalf("ParseFilterJSON(%s): unexpected error %v", c, err)
		}
		if verr := f.Validate(); verr != nil {
			t.Fatalf("ParseFilterJSON(%s): Validate failed: %v", c, verr)
		}
	}
}

func TestParseFilterJSONNeverPanics(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`null`,
		`42`,
		`"just a string"`,
		`[]`,
		`{"cmp": {"path": "a", "op": "bogus", "value": 1}}`,
		`{"unknown_key": {}}`,
		`{"not": {"not": "not an object"}}`,
		`{"and": "not a list"}`,
		`{"in": {"path": "a"}}`,
		string(make([]byte, 0)),
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("ParseFilterJSON(%q) panicked: %v", in, r)
				}
			}()
			if _, err := ParseFilterJSON([]byte(in)); err == nil {
				t.Fatalf("ParseFilterJSON(%q): expected a QueryError, got none", in)
			}
		}()
	}
}

func TestParseFilterJSONRejectsExcessiveNotNesting(t *testing.T) {
	doc := `{"true": true}`
	for i := 0; i < maxFilterNesting+10; i++ {
		doc = `{"not": ` + doc + `}`
	}
	if _, err := ParseFilterJSON([]byte(doc)); err == nil {
		t.Fatal("expected excessive not-nesting to be rejected")
	}
}

func TestParseFilterJSONRejectsOversizedInList(t *testing.T) {
	values := make([]interface{}, MaxInSetSize+1)
	for i := range values {
		values[i] = i
	}
	payload, err := json.Marshal(map[string]interface{}{
		"in": map[string]interface{}{"path": "status", "values": values},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	f, qerr := ParseFilterJSON(payload)
	if qerr != nil {
		t.Fatalf("ParseFilterJSON: unexpected error %v", qerr)
	}
	if err := f.Validate(); err == nil {
		t.Fatal("expected oversized in-set to be rejected by Validate")
	}
}
