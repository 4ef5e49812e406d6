package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactInteger is the largest integer a protobuf double carries exactly.
const maxExactInteger = 1 << 53

// toStruct carries a vault message as a google.protobuf.Struct. Integers
// travel as doubles, so values beyond 2^53 are refused instead of rounded.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	for key, value := range fields {
		converted, err := exactNumbers(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", key, err)
		}
		fields[key] = converted
	}
	return structpb.NewStruct(fields)
}

func exactNumbers(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			if n > maxExactInteger || n < -maxExactInteger {
				return nil, fmt.Errorf("integer %d does not fit a double", n)
			}
			return float64(n), nil
		}
		if _, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return nil, fmt.Errorf("integer %s does not fit a double", v)
		}
		return v.Float64()
	case map[string]any:
		for key, inner := range v {
			converted, err := exactNumbers(inner)
			if err != nil {
				return nil, err
			}
			v[key] = converted
		}
		return v, nil
	case []any:
		for i, inner := range v {
			converted, err := exactNumbers(inner)
			if err != nil {
				return nil, err
			}
			v[i] = converted
		}
		return v, nil
	default:
		return value, nil
	}
}

// fromStruct decodes a google.protobuf.Struct into a vault message.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
