package hcl

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ToString converts a known, non-null value to a string. Numbers and bools
// are converted the way HCL interpolation converts them.
func ToString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", fmt.Errorf("value is null")
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known")
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expected a string, got %s: %w", val.Type().FriendlyName(), err)
	}
	return s.AsString(), nil
}

// ToStrings converts a list, set or tuple to a slice of strings. A null
// value yields a nil slice.
func ToStrings(val cty.Value) ([]string, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := val.Type()
	if !ty.IsListType() && !ty.IsSetType() && !ty.IsTupleType() {
		return nil, fmt.Errorf("expected a list of strings, got %s", ty.FriendlyName())
	}

	out := make([]string, 0, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		s, err := ToString(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", len(out), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ToCtyValue converts the generic values produced by a YAML or JSON decoder
// (maps, slices and scalars) to a cty value.
func ToCtyValue(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case uint64:
		return cty.NumberUIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []string:
		return stringList(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			ev, err := ToCtyValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make(map[string]cty.Value, len(t))
		for _, k := range keys {
			ev, err := ToCtyValue(t[k])
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
	}
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	elems := make([]cty.Value, len(values))
	for i, v := range values {
		elems[i] = cty.StringVal(v)
	}
	return cty.ListVal(elems)
}
