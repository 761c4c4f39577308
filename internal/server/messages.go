package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ViewRequest is the body of a view call on the HTTP shim.
type ViewRequest struct {
	Contract string          `json:"contract"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ViewResponse carries the JSON result of a view call.
type ViewResponse struct {
	Result json.RawMessage `json:"result"`
}

// On the gRPC wire requests and records are protobuf well-known types.
// Scalars travel in wrapperspb, documents in structpb. Native amounts are
// decimal strings so they survive structpb's float64 numbers.

func callRequestToProto(req *CallRequest) (*structpb.Struct, error) {
	args, err := rawToValue(req.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrInvalidRequest, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"contract": structpb.NewStringValue(req.Contract),
		"method":   structpb.NewStringValue(req.Method),
		"caller":   structpb.NewStringValue(req.Caller),
		"deposit":  structpb.NewStringValue(strconv.FormatUint(req.Deposit, 10)),
		"args":     args,
	}}, nil
}

func callRequestFromProto(in *structpb.Struct) (*CallRequest, error) {
	f := in.GetFields()
	req := &CallRequest{
		Contract: f["contract"].GetStringValue(),
		Method:   f["method"].GetStringValue(),
		Caller:   f["caller"].GetStringValue(),
	}
	if d := f["deposit"].GetStringValue(); d != "" {
		deposit, err := strconv.ParseUint(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: deposit %q", ErrInvalidRequest, d)
		}
		req.Deposit = deposit
	}
	args, err := valueToRaw(f["args"])
	if err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrInvalidRequest, err)
	}
	req.Args = args
	return req, nil
}

func viewRequestToProto(req *ViewRequest) (*structpb.Struct, error) {
	args, err := rawToValue(req.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrInvalidRequest, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"contract": structpb.NewStringValue(req.Contract),
		"method":   structpb.NewStringValue(req.Method),
		"args":     args,
	}}, nil
}

func viewRequestFromProto(in *structpb.Struct) (*ViewRequest, error) {
	f := in.GetFields()
	args, err := valueToRaw(f["args"])
	if err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrInvalidRequest, err)
	}
	return &ViewRequest{
		Contract: f["contract"].GetStringValue(),
		Method:   f["method"].GetStringValue(),
		Args:     args,
	}, nil
}

// rawToValue converts a JSON document into a structpb.Value. Absent input
// becomes a null value.
func rawToValue(raw json.RawMessage) (*structpb.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return structpb.NewNullValue(), nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// valueToRaw is the inverse of rawToValue; null and missing values give nil.
func valueToRaw(v *structpb.Value) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok {
		return nil, nil
	}
	return protojson.Marshal(v)
}

// toStruct converts a JSON-tagged record into a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStruct decodes a structpb.Struct produced by toStruct into v.
func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
