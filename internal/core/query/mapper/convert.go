package mapper

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// isScalarStruct reports struct types that map from a single column.
func isScalarStruct(t reflect.Type) bool {
	return t == timeType || reflect.PointerTo(t).Implements(scannerType)
}

// SetValue assigns a raw driver value to field, converting between the
// representations drivers use for the same SQL type.
func SetValue(field reflect.Value, value any) error {
	fieldType := field.Type()

	if value == nil {
		field.Set(reflect.Zero(fieldType))
		return nil
	}

	if reflect.PointerTo(fieldType).Implements(scannerType) && fieldType.Kind() != reflect.Ptr {
		return field.Addr().Interface().(sql.Scanner).Scan(value)
	}

	if fieldType.Kind() == reflect.Ptr {
		ptr := reflect.New(fieldType.Elem())
		if err := SetValue(ptr.Elem(), value); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	if fieldType.Kind() == reflect.Interface {
		field.Set(reflect.ValueOf(plainValue(value)))
		return nil
	}

	valueReflect := reflect.ValueOf(value)
	if valueReflect.Type().AssignableTo(fieldType) {
		field.Set(valueReflect)
		return nil
	}

	switch fieldType.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case []byte:
			field.SetString(string(v))
		case time.Time:
			field.SetString(v.Format(time.RFC3339Nano))
		default:
			field.SetString(fmt.Sprintf("%v", value))
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(value)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, fieldType)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(value)
		if err != nil {
			return err
		}
		if n < 0 || field.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, fieldType)
		}
		field.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(value)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := toBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if fieldType.Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported field type: %s", fieldType)
		}
		switch v := value.(type) {
		case []byte:
			field.SetBytes(append([]byte(nil), v...))
		case string:
			field.SetBytes([]byte(v))
		default:
			return fmt.Errorf("cannot convert %T to %s", value, fieldType)
		}

	case reflect.Struct:
		if fieldType != timeType {
			return fmt.Errorf("unsupported struct type: %s", fieldType)
		}
		t, err := toTime(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))

	default:
		return fmt.Errorf("unsupported field type: %s", fieldType)
	}
	return nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	}
	return 0, fmt.Errorf("cannot convert %T to int", value)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// Decimal text such as "3.00" from SUM/AVG over numeric columns.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to int", s)
	}
	return int64(f), nil
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	n, err := toInt64(value)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
	return float64(n), nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	n, err := toInt64(value)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
	return n != 0, nil
}

func toTime(value any) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", value)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// KeyOf normalizes a key value so that the same key read from a parent row
// and from a child row compares equal.
func KeyOf(value any) any {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return KeyOf(rv.Elem().Interface())
	}
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return KeyOf(string(v))
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		return v
	case fmt.Stringer:
		return v.String()
	}
	if n, err := toInt64(value); err == nil {
		if f, ok := value.(float64); ok && float64(n) != f {
			return f
		}
		return n
	}
	return value
}
