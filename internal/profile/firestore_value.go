package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Firestore REST APIの値表現との相互変換。
// https://firebase.google.com/docs/firestore/reference/rest/v1/Value

// encodeFields はドキュメントのフィールドをFirestoreの値表現に変換する。
func encodeFields(doc Document) (map[string]any, error) {
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("フィールド %q: %w", k, err)
		}
		fields[k] = ev
	}
	return fields, nil
}

// encodeValue はJSON由来の値をFirestoreの値表現に変換する。
func encodeValue(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{"nullValue": nil}, nil
	case bool:
		return map[string]any{"booleanValue": x}, nil
	case string:
		return map[string]any{"stringValue": x}, nil
	case int:
		return map[string]any{"integerValue": strconv.FormatInt(int64(x), 10)}, nil
	case int64:
		return map[string]any{"integerValue": strconv.FormatInt(x, 10)}, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return map[string]any{"integerValue": strconv.FormatInt(int64(x), 10)}, nil
		}
		return map[string]any{"doubleValue": x}, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return map[string]any{"integerValue": strconv.FormatInt(i, 10)}, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("数値の変換に失敗: %w", err)
		}
		return map[string]any{"doubleValue": f}, nil
	case []any:
		values := make([]any, 0, len(x))
		for i, e := range x {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("要素 %d: %w", i, err)
			}
			values = append(values, ev)
		}
		return map[string]any{"arrayValue": map[string]any{"values": values}}, nil
	case map[string]any:
		fields, err := encodeFields(Document(x))
		if err != nil {
			return nil, err
		}
		return map[string]any{"mapValue": map[string]any{"fields": fields}}, nil
	case Document:
		return encodeValue(map[string]any(x))
	default:
		return nil, fmt.Errorf("未対応の値の型: %T", v)
	}
}

// decodeFields はFirestoreのフィールド表現をドキュメントに変換する。
func decodeFields(fields map[string]any) (Document, error) {
	doc := make(Document, len(fields))
	for k, raw := range fields {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("フィールド %q の値が不正", k)
		}
		v, err := decodeValue(m)
		if err != nil {
			return nil, fmt.Errorf("フィールド %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

// decodeValue はFirestoreの値表現をJSONにそのまま出せる値に変換する。
// タイムスタンプと参照は文字列、バイト列はbase64文字列のまま返す。
func decodeValue(m map[string]any) (any, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("値の種類を特定できない: %v", keys)
	}

	for kind, x := range m {
		switch kind {
		case "nullValue":
			return nil, nil
		case "booleanValue", "stringValue", "timestampValue", "bytesValue", "referenceValue", "geoPointValue":
			return x, nil
		case "integerValue":
			switch n := x.(type) {
			case string:
				i, err := strconv.ParseInt(n, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("integerValueの変換に失敗: %w", err)
				}
				return i, nil
			case float64:
				return int64(n), nil
			}
			return nil, fmt.Errorf("integerValueの型が不正: %T", x)
		case "doubleValue":
			// NaNとInfinityは文字列で表現される
			return x, nil
		case "arrayValue":
			arr, _ := x.(map[string]any)
			rawValues, _ := arr["values"].([]any)
			values := make([]any, 0, len(rawValues))
			for i, rv := range rawValues {
				em, ok := rv.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("要素 %d の値が不正", i)
				}
				v, err := decodeValue(em)
				if err != nil {
					return nil, fmt.Errorf("要素 %d: %w", i, err)
				}
				values = append(values, v)
			}
			return values, nil
		case "mapValue":
			mv, _ := x.(map[string]any)
			rawFields, _ := mv["fields"].(map[string]any)
			doc, err := decodeFields(rawFields)
			if err != nil {
				return nil, err
			}
			return map[string]any(doc), nil
		default:
			return nil, fmt.Errorf("未対応の値の種類: %s", kind)
		}
	}
	return nil, nil
}
