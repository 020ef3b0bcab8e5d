package query

import (
	"testing"

	"github.com/nexuslite/nexuslite/internal/engine"
)

func doc(fields map[string]interface{}) *engine.BSONMap {
	return engine.NewBSONMap(fields)
}

func TestFilterTrueAlwaysMatches(t *testing.T) {
	f := True()
	ok, err := f.Eval(doc(nil))
	if err != nil || !ok {
		t.Fatalf("expected True to match, got ok=%v err=%v", ok, err)
	}
}

func TestFilterCmpEquality(t *testing.T) {
	f := Cmp("age", Eq, float64(30))
	ok, err := f.Eval(doc(map[string]interface{}{"age": float64(30)}))
	if err != nil || !ok {
		t.Fatalf("expected age==30 to match, got ok=%v err=%v", ok, err)
	}
	ok, err = f.Eval(doc(map[string]interface{}{"age": float64(31)}))
	if err != nil || ok {
		t.Fatalf("expected age==30 to reject 31, got ok=%v err=%v", ok, err)
	}
}

func TestFilterCmpGtLt(t *testing.T) {
	gt := Cmp("age", Gt, float64(10))
	if ok, _ := gt.Eval(doc(map[string]interface{}{"age": float64(11)})); !ok {
		t.Fatal("expected 11 > 10 to match")
	}
	if ok, _ := gt.Eval(doc(map[string]interface{}{"age": float64(9)})); ok {
		t.Fatal("expected 9 > 10 to not match")
	}
}

func TestFilterAndOrNot(t *testing.T) {
	and := And(Cmp("a", Eq, float64(1)), Cmp("b", Eq, float64(2)))
	d := doc(map[string]interface{}{"a": float64(1), "b": float64(2)})
	if ok, _ := and.Eval(d); !ok {
		t.Fatal("expected And of two true leaves to match")
	}

	or := Or(Cmp("a", Eq, float64(9)), Cmp("b", Eq, float64(2)))
	if ok, _ := or.Eval(d); !ok {
		t.Fatal("expected Or with one true leaf to match")
	}

	not := Not(Cmp("a", Eq, float64(9)))
	if ok, _ := not.Eval(d); !ok {
		t.Fatal("expected Not of a false leaf to match")
	}
}

func TestFilterExists(t *testing.T) {
	f := Exists("name", true)
	if ok, _ := f.Eval(doc(map[string]interface{}{"name": "a"})); !ok {
		t.Fatal("expected exists=true to match present field")
	}
	f2 := Exists("missing", false)
	if ok, _ := f2.Eval(doc(nil)); !ok {
		t.Fatal("expected exists=false to match absent field")
	}
}

func TestFilterInNin(t *testing.T) {
	in := In("tag", []interface{}{"a", "b", "c"})
	if ok, _ := in.Eval(doc(map[string]interface{}{"tag": "b"})); !ok {
		t.Fatal("expected In to match a listed value")
	}
	if ok, _ := in.Eval(doc(map[string]interface{}{"tag": "z"})); ok {
		t.Fatal("expected In to reject an unlisted value")
	}

	nin := Nin("tag", []interface{}{"a", "b"})
	if ok, _ := nin.Eval(doc(map[string]interface{}{"tag": "z"})); !ok {
		t.Fatal("expected Nin to match a value outside the set")
	}
}

func TestFilterRegex(t *testing.T) {
	f := Regex("name", "^al", true)
	if ok, _ := f.Eval(doc(map[string]interface{}{"name": "Alice"})); !ok {
		t.Fatal("expected case-insensitive regex to match")
	}
	if ok, _ := f.Eval(doc(map[string]interface{}{"name": "Bob"})); ok {
		t.Fatal("expected regex to reject a non-matching name")
	}
}

func TestFilterValidateRejectsOversizedInSet(t *testing.T) {
	values := make([]interface{}, MaxInSetSize+1)
	for i := range values {
		values[i] = i
	}
	f := In("tag", values)
	if err := f.Validate(); err == nil {
		t.Fatal("expected validation to reject an In set over the cap")
	}
}

func TestFilterValidateRejectsExcessivePathDepth(t *testing.T) {
	path := ""
	for i := 0; i <= MaxPathDepth; i++ {
		if path != "" {
			path += "."
		}
		path += "f"
	}
	f := Exists(path, true)
	if err := f.Validate(); err == nil {
		t.Fatal("expected validation to reject a path exceeding max depth")
	}
}

func TestFilterNestedPathResolution(t *testing.T) {
	nested := doc(map[string]interface{}{"city": "NYC"})
	outer := doc(map[string]interface{}{"address": nested})
	f := Cmp("address.city", Eq, "NYC")
	if ok, _ := f.Eval(outer); !ok {
		t.Fatal("expected dotted path to resolve through a nested document")
	}
}
