package persist

import (
	"fmt"
	"reflect"
)

// Filter converts a field to and from the text stored in the archive.
// ToArchive receives the field's value; FromArchive receives a pointer to
// the field.
type Filter interface {
	ToArchive(ar *Archive, value any) (string, error)
	FromArchive(ar *Archive, text string, ptr any) error
}

func intOf(value any) (int64, error) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(v.Uint()), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}

func setInt(ptr any, n int64) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("expected a pointer to an integer, got %T", ptr)
	}
	v = v.Elem()
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %v", n, v.Type())
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n < 0 && v.Kind() != reflect.Uint64 || v.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %v", n, v.Type())
		}
		v.SetUint(uint64(n))
	default:
		return fmt.Errorf("expected a pointer to an integer, got %T", ptr)
	}
	return nil
}

func stringOf(value any) (string, error) {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.String {
		return "", fmt.Errorf("expected a string, got %T", value)
	}
	return v.String(), nil
}

func setString(ptr any, s string) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.String {
		return fmt.Errorf("expected a pointer to a string, got %T", ptr)
	}
	v.Elem().SetString(s)
	return nil
}
