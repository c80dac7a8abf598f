package database

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// columnMode selects which struct fields participate in a statement.
type columnMode int

const (
	// insertMode keeps every tagged column except a zero-value id,
	// which is left for the backend to auto-assign.
	insertMode columnMode = iota
	// updateMode drops the id column entirely.
	updateMode
)

// structColumns extracts column names and values from record using `db:`
// tags. Fields tagged db:"-" (or untagged) are ignored.
func structColumns(record interface{}, mode columnMode) (cols []string, vals []interface{}) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if tag == "id" {
			if mode == updateMode || v.Field(i).IsZero() {
				continue
			}
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

// placeholders returns "?, ?, ..." for n bound values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// scanRows scans sql.Rows into a slice of structs using `db:` tags.
func scanRows(rows *sql.Rows, dest interface{}) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("Select: dest must be a pointer to a slice")
	}
	sliceVal := dv.Elem()
	elemType := sliceVal.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		if err := rows.Scan(rowTargets(elem, cols)...); err != nil {
			return err
		}
		if isPtr {
			sliceVal.Set(reflect.Append(sliceVal, elem.Addr()))
		} else {
			sliceVal.Set(reflect.Append(sliceVal, elem))
		}
	}
	return rows.Err()
}

// scanRow scans a single sql.Row into dest struct. sql.Row exposes no column
// names, so the query's column order must match the struct's tagged fields.
func scanRow(row *sql.Row, dest interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("Get: dest must be a pointer")
	}
	elem := dv.Elem()
	var ptrs []interface{}
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Type().Field(i)
		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			ptrs = append(ptrs, elem.Field(i).Addr().Interface())
		}
	}
	return row.Scan(ptrs...)
}

// rowTargets maps result columns to struct field pointers via `db:` tags.
// Columns without a matching field scan into a discard slot.
func rowTargets(elem reflect.Value, cols []string) []interface{} {
	byTag := map[string]interface{}{}
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag != "" && tag != "-" {
			byTag[tag] = elem.Field(i).Addr().Interface()
		}
	}
	targets := make([]interface{}, len(cols))
	for i, c := range cols {
		if p, ok := byTag[c]; ok {
			targets[i] = p
		} else {
			var discard interface{}
			targets[i] = &discard
		}
	}
	return targets
}
