package server

import (
	"context"
	"encoding/json"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a battlefieldd gRPC endpoint.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Extra options are appended after the
// default insecure transport.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// record invokes method and decodes the returned struct into v.
func (c *Client) record(ctx context.Context, method string, in proto.Message, v any) error {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, v)
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, "Ping", &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) Call(ctx context.Context, req *CallRequest) (*models.Receipt, error) {
	in, err := callRequestToProto(req)
	if err != nil {
		return nil, err
	}
	var r models.Receipt
	if err := c.record(ctx, "Call", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) View(ctx context.Context, contractID, method string, args json.RawMessage) (json.RawMessage, error) {
	in, err := viewRequestToProto(&ViewRequest{Contract: contractID, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Value)
	if err := c.invoke(ctx, "View", in, out); err != nil {
		return nil, err
	}
	return valueToRaw(out)
}

func (c *Client) Receipt(ctx context.Context, id string) (*models.Receipt, error) {
	var r models.Receipt
	if err := c.record(ctx, "Receipt", wrapperspb.String(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) State(ctx context.Context, contractID string) (*contract.Snapshot, error) {
	var snap contract.Snapshot
	if err := c.record(ctx, "State", wrapperspb.String(contractID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Balance(ctx context.Context, account string) (*models.Account, error) {
	var acc models.Account
	if err := c.record(ctx, "Balance", wrapperspb.String(account), &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}
