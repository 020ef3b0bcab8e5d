// Package query implements the document filter grammar, executor,
// index-hint selection, rate limiting, and result caps layered on top
// of internal/engine's collections.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// CmpOp names a comparison operator usable inside a Cmp filter leaf.
type CmpOp int

const (
	Eq CmpOp = iota
	Gt
	Gte
	Lt
	Lte
)

// FilterKind tags which variant of the Filter sum type is populated.
type FilterKind int

const (
	FTrue FilterKind = iota
	FAnd
	FOr
	FNot
	FExists
	FIn
	FNin
	FCmp
	FRegex
)

// Filter is a tagged union mirroring the grammar:
//
//	True | And[] | Or[] | Not | Exists{path,exists} | In{path,values} |
//	Nin{path,values} | Cmp{path,op,value} | Regex{path,pattern,ci}
//
// Exactly the fields relevant to Kind are populated; the rest are zero.
type Filter struct {
	Kind FilterKind

	// And, Or, Not
	Children []Filter // And, Or
	Child    *Filter  // Not

	// Exists
	Path   string
	Exists bool

	// In, Nin
	Values []interface{}

	// Cmp
	Op    CmpOp
	Value interface{}

	// Regex
	Pattern         string
	CaseInsensitive bool

	compiled *regexp.Regexp
}

// True builds the always-match filter.
func True() Filter { return Filter{Kind: FTrue} }

func And(children ...Filter) Filter { return Filter{Kind: FAnd, Children: children} }
func Or(children ...Filter) Filter  { return Filter{Kind: FOr, Children: children} }
func Not(child Filter) Filter       { return Filter{Kind: FNot, Child: &child} }

func Exists(path string, exists bool) Filter {
	return Filter{Kind: FExists, Path: path, Exists: exists}
}

func In(path string, values []interface{}) Filter {
	return Filter{Kind: FIn, Path: path, Values: values}
}

func Nin(path string, values []interface{}) Filter {
	return Filter{Kind: FNin, Path: path, Values: values}
}

func Cmp(path string, op CmpOp, value interface{}) Filter {
	return Filter{Kind: FCmp, Path: path, Op: op, Value: value}
}

func Regex(path, pattern string, caseInsensitive bool) Filter {
	return Filter{Kind: FRegex, Path: path, Pattern: pattern, CaseInsensitive: caseInsensitive}
}

// Validate enforces the safety caps: path depth, In/Nin set size, and
// recursively validates nested filters.
func (f *Filter) Validate() error {
	switch f.Kind {
	case FAnd, FOr:
		for i := range f.Children {
			if err := f.Children[i].Validate(); err != nil {
				return err
			}
		}
	case FNot:
		if f.Child != nil {
			return f.Child.Validate()
		}
	case FExists, FCmp, FRegex:
		if pathDepth(f.Path) > MaxPathDepth {
			return fmt.Errorf("%w: path %q exceeds max depth %d", ErrCapExceeded, f.Path, MaxPathDepth)
		}
	case FIn, FNin:
		if pathDepth(f.Path) > MaxPathDepth {
			return fmt.Errorf("%w: path %q exceeds max depth %d", ErrCapExceeded, f.Path, MaxPathDepth)
		}
		if len(f.Values) > MaxInSetSize {
			return fmt.Errorf("%w: in-set size %d exceeds max %d", ErrCapExceeded, len(f.Values), MaxInSetSize)
		}
	}
	return nil
}

func pathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// Eval evaluates the filter against a document's data.
func (f *Filter) Eval(data *engine.BSONMap) (bool, error) {
	switch f.Kind {
	case FTrue:
		return true, nil
	case FAnd:
		for i := range f.Children {
			ok, err := f.Children[i].Eval(data)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case FOr:
		for i := range f.Children {
			ok, err := f.Children[i].Eval(data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case FNot:
		if f.Child == nil {
			return true, nil
		}
		ok, err := f.Child.Eval(data)
		return !ok, err
	case FExists:
		_, has := resolvePath(data, f.Path)
		return has == f.Exists, nil
	case FIn:
		v, has := resolvePath(data, f.Path)
		if !has {
			return false, nil
		}
		for _, want := range f.Values {
			if valuesEqual(v, want) {
				return true, nil
			}
		}
		return false, nil
	case FNin:
		v, has := resolvePath(data, f.Path)
		if !has {
			return true, nil
		}
		for _, want := range f.Values {
			if valuesEqual(v, want) {
				return false, nil
			}
		}
		return true, nil
	case FCmp:
		v, has := resolvePath(data, f.Path)
		if !has {
			return false, nil
		}
		return evalCmp(v, f.Op, f.Value), nil
	case FRegex:
		v, has := resolvePath(data, f.Path)
		if !has {
			return false, nil
		}
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		re, err := f.regexp()
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("%w: unknown filter kind %d", ErrQuery, f.Kind)
	}
}

func (f *Filter) regexp() (*regexp.Regexp, error) {
	if f.compiled != nil {
		return f.compiled, nil
	}
	pattern := f.Pattern
	if f.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad regex %q: %v", ErrQuery, f.Pattern, err)
	}
	f.compiled = re
	return re, nil
}

// resolvePath walks a dotted path ("a.b.c") through nested BSONMaps.
func resolvePath(data *engine.BSONMap, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := cur.(*engine.BSONMap)
		if !ok {
			return nil, false
		}
		v, ok := m.Get(p)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func valuesEqual(a, b interface{}) bool {
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		return an == bn
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func evalCmp(v interface{}, op CmpOp, want interface{}) bool {
	vn, vok := asFloat(v)
	wn, wok := asFloat(want)
	if vok && wok {
		switch op {
		case Eq:
			return vn == wn
		case Gt:
			return vn > wn
		case Gte:
			return vn >= wn
		case Lt:
			return vn < wn
		case Lte:
			return vn <= wn
		}
		return false
	}
	vs, vsok := v.(string)
	ws, wsok := want.(string)
	if vsok && wsok {
		switch op {
		case Eq:
			return vs == ws
		case Gt:
			return vs > ws
		case Gte:
			return vs >= ws
		case Lt:
			return vs < ws
		case Lte:
			return vs <= ws
		}
	}
	if op == Eq {
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", want)
	}
	return false
}
