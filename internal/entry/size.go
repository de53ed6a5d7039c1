package entry

import (
	"reflect"
	"time"
)

// Per-type costs: scalars are fixed, strings cost 2 bytes per rune slot,
// composites recursively sum child costs plus key-name cost for maps.
const (
	boolCost    = 4
	numberCost  = 8
	timeCost    = 8
	unknownCost = 8
)

// EstimateSize approximates the byte footprint of a payload.
// The rule set is consistent rather than exact: it only has to order entries
// fairly for size-bounded eviction.
func EstimateSize(v any) int64 {
	if v == nil {
		return 0
	}
	switch t := v.(type) {
	case bool:
		return boolCost
	case string:
		return int64(2 * len(t))
	case []byte:
		return int64(len(t))
	case time.Time:
		return timeCost
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return numberCost
	}
	return estimateReflect(reflect.ValueOf(v))
}

func estimateReflect(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Bool:
		return boolCost
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return numberCost
	case reflect.String:
		return int64(2 * rv.Len())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return 0
		}
		var sum int64
		for i := 0; i < rv.Len(); i++ {
			sum += estimateReflect(rv.Index(i))
		}
		return sum
	case reflect.Map:
		if rv.IsNil() {
			return 0
		}
		var sum int64
		iter := rv.MapRange()
		for iter.Next() {
			sum += estimateReflect(iter.Key())
			sum += estimateReflect(iter.Value())
		}
		return sum
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			return timeCost
		}
		var sum int64
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			sum += estimateReflect(rv.Field(i))
		}
		return sum
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		return estimateReflect(rv.Elem())
	default:
		return unknownCost
	}
}
