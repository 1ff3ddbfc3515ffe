package postgres

import (
	"reflect"
	"sync"
)

// rowMeta is the cached "db" tag layout of a row struct.
type rowMeta struct {
	columns []string
	index   [][]int
}

var rowCache sync.Map // map[reflect.Type]*rowMeta

// Columns returns the "db" column names of row type T in field order.
// Embedded structs are flattened.
//
//	cols := Columns[orderRow]()
//	// ["id", "number", "tool", ...]
func Columns[T any]() []string {
	var zero T
	meta := metaFor(reflect.TypeOf(zero))
	out := make([]string, len(meta.columns))
	copy(out, meta.columns)
	return out
}

// StructToMap converts a row struct to column/value pairs for squirrel SetMap.
// Fields without a "db" tag (or tagged "-") are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metaFor(rv.Type())
	res := make(map[string]any, len(meta.columns))
	for i, col := range meta.columns {
		res[col] = rv.FieldByIndex(meta.index[i]).Interface()
	}
	return res
}

// metaFor reflects t once; later calls hit the cache.
func metaFor(t reflect.Type) *rowMeta {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := rowCache.Load(t); ok {
		return cached.(*rowMeta)
	}

	meta := &rowMeta{}
	if t.Kind() == reflect.Struct {
		collect(t, nil, meta)
	}
	actual, _ := rowCache.LoadOrStore(t, meta)
	return actual.(*rowMeta)
}

func collect(t reflect.Type, prefix []int, meta *rowMeta) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collect(field.Type, path, meta)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.columns = append(meta.columns, tag)
		meta.index = append(meta.index, path)
	}
}
