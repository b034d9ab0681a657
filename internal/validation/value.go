package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

var (
	// ErrInvalidName indicates a table, row or database name that cannot be stored
	ErrInvalidName = errors.New("invalid name")

	// ErrUnsupportedValue indicates a value that is not structurally simple
	ErrUnsupportedValue = errors.New("unsupported value")
)

// maxDepth ограничивает вложенность значения
const maxDepth = 256

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// EncodeValue проверяет, что значение структурно простое, и сериализует его в JSON.
// Допустимы nil, bool, числа, строки, срезы, массивы, map со строковыми или целыми
// ключами и структуры из таких значений. Функции, каналы, комплексные числа,
// NaN/Inf и циклические ссылки отклоняются.
func EncodeValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		// компактная форма: так значение совпадает с тем, что вернёт json.Marshal
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("%w: raw value is not valid JSON", ErrUnsupportedValue)
		}
		return buf.Bytes(), nil
	}

	if err := ValidateValue(v); err != nil {
		return nil, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
	}
	return data, nil
}

// ValidateValue проверяет значение без сериализации
func ValidateValue(v any) error {
	w := &walker{visiting: make(map[visit]bool)}
	return w.walk(reflect.ValueOf(v), "value", 0)
}

type visit struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type walker struct {
	visiting map[visit]bool
}

func (w *walker) walk(v reflect.Value, path string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: %s nests deeper than %d levels", ErrUnsupportedValue, path, maxDepth)
	}

	switch v.Kind() {
	case reflect.Invalid, reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s is %v", ErrUnsupportedValue, path, f)
		}
		return nil

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem(), path, depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return w.enter(visit{typ: v.Type(), ptr: v.Pointer()}, path, func() error {
			return w.walk(v.Elem(), path, depth+1)
		})

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type() == rawMessageType {
			if !json.Valid(v.Bytes()) {
				return fmt.Errorf("%w: %s is not valid JSON", ErrUnsupportedValue, path)
			}
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return w.enter(visit{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}, path, func() error {
			return w.elements(v, path, depth)
		})

	case reflect.Array:
		return w.elements(v, path, depth)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		switch v.Type().Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return fmt.Errorf("%w: %s has %s keys", ErrUnsupportedValue, path, v.Type().Key())
		}
		return w.enter(visit{typ: v.Type(), ptr: v.Pointer()}, path, func() error {
			iter := v.MapRange()
			for iter.Next() {
				key := fmt.Sprint(iter.Key().Interface())
				if err := w.walk(iter.Value(), path+"."+key, depth+1); err != nil {
					return err
				}
			}
			return nil
		})

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = field.Name
			}
			if err := w.walk(v.Field(i), path+"."+name, depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		// func, chan, complex, uintptr, unsafe.Pointer
		return fmt.Errorf("%w: %s has kind %s", ErrUnsupportedValue, path, v.Kind())
	}
}

func (w *walker) elements(v reflect.Value, path string, depth int) error {
	for i := 0; i < v.Len(); i++ {
		if err := w.walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// enter отмечает контейнер на текущем пути. Общие поддеревья (DAG) допустимы,
// повторный вход в контейнер, который ещё обходится, означает цикл.
func (w *walker) enter(key visit, path string, fn func() error) error {
	if w.visiting[key] {
		return fmt.Errorf("%w: %s contains a cycle", ErrUnsupportedValue, path)
	}
	w.visiting[key] = true
	defer delete(w.visiting, key)
	return fn()
}
