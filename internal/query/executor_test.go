package query

import (
	"path/filepath"
	"testing"

	"github.com/nexuslite/nexuslite/internal/engine"
)

func openTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.wasp")
	e, err := engine.New(path)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func seedUsers(t *testing.T, e *engine.Engine) {
	t.Helper()
	e.CreateCollection("users")
	users := []map[string]interface{}{
		{"name": "alice", "age": float64(30), "city": "NYC"},
		{"name": "bob", "age": float64(25), "city": "LA"},
		{"name": "carol", "age": float64(35), "city": "NYC"},
	}
	for _, u := range users {
		if _, err := e.InsertDocument("users", engine.NewBSONMap(u), engine.Persistent, nil); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
}

func TestExecutorFindMatchesFilter(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	results, err := ex.Find("users", Cmp("city", Eq, "NYC"), FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 NYC users, got %d", len(results))
	}
}

func TestExecutorUsesIndexWhenDeclared(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)
	if _, err := e.CreateIndex("users", "city", engine.HashIndex); err != nil {
		t.Fatalf("create index: %v", err)
	}

	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	results, err := ex.Find("users", Cmp("city", Eq, "NYC"), FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 NYC users via index, got %d", len(results))
	}
	if ex.LastTelemetry().UsedIndex != "city" {
		t.Fatalf("expected telemetry to report the city index used, got %q", ex.LastTelemetry().UsedIndex)
	}
}

func TestExecutorSortAscending(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	results, err := ex.Find("users", True(), FindOptions{
		Sort: []SortField{{Path: "age", Direction: Asc}},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 users, got %d", len(results))
	}
	ages := make([]float64, len(results))
	for i, d := range results {
		v, _ := d.Data.Get("age")
		ages[i] = v.(float64)
	}
	if ages[0] != 25 || ages[1] != 30 || ages[2] != 35 {
		t.Fatalf("expected ascending ages, got %v", ages)
	}
}

func TestExecutorSkipAndLimit(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	results, err := ex.Find("users", True(), FindOptions{
		Sort:  []SortField{{Path: "age", Direction: Asc}},
		Skip:  1,
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result after skip+limit, got %d", len(results))
	}
	v, _ := results[0].Data.Get("age")
	if v.(float64) != 30 {
		t.Fatalf("expected the middle-aged user after skip(1), got %v", v)
	}
}

func TestExecutorProjectionRestrictsFields(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	results, err := ex.Find("users", Cmp("name", Eq, "alice"), FindOptions{
		Projection: []string{"name"},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if _, ok := results[0].Data.Get("age"); ok {
		t.Fatal("expected age to be excluded by projection")
	}
	if _, ok := results[0].Data.Get("name"); !ok {
		t.Fatal("expected name to survive projection")
	}
}

func TestExecutorResultCapTruncates(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: 1})
	results, err := ex.Find("users", True(), FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected global result cap of 1 to truncate results, got %d", len(results))
	}
}

func TestExecutorPerCollectionCapOverridesGlobal(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	ex := NewExecutor(e, nil, ResultCapConfig{Global: 1, PerCollection: map[string]int{"users": 2}})
	results, err := ex.Find("users", True(), FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected per-collection cap of 2 to take precedence over global, got %d", len(results))
	}
}

func TestExecutorRateLimitedReturnsError(t *testing.T) {
	e := openTestEngine(t)
	seedUsers(t, e)

	limiter := NewLimiter(1, 0)
	ex := NewExecutor(e, limiter, ResultCapConfig{Global: MaxLimit})
	if _, err := ex.Find("users", True(), FindOptions{}); err != nil {
		t.Fatalf("expected first call to pass the rate limiter: %v", err)
	}
	if _, err := ex.Find("users", True(), FindOptions{}); err == nil {
		t.Fatal("expected second call to be rate limited")
	}
}

func TestExecutorNoSuchCollection(t *testing.T) {
	e := openTestEngine(t)
	ex := NewExecutor(e, nil, ResultCapConfig{Global: MaxLimit})
	if _, err := ex.Find("ghost", True(), FindOptions{}); err != ErrNoSuchColl {
		t.Fatalf("expected ErrNoSuchColl, got %v", err)
	}
}
