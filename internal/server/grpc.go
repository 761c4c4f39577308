package server

import (
	"context"
	"errors"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/ledger"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "battlefield.v1.Contract"

// ContractServer is the server API for the battlefield.v1.Contract service.
type ContractServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	View(context.Context, *structpb.Struct) (*structpb.Value, error)
	Receipt(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	State(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Balance(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContractServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", ContractServer.Ping),
		unary("Call", ContractServer.Call),
		unary("View", ContractServer.View),
		unary("Receipt", ContractServer.Receipt),
		unary("State", ContractServer.State),
		unary("Balance", ContractServer.Balance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "battlefield/v1/contract",
}

func unary[Req, Resp any](name string, call func(ContractServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			cs := srv.(ContractServer)
			if interceptor == nil {
				return call(cs, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(cs, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterGRPC registers the gRPC handlers.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, &grpcService{s: s})
}

// ---------- gRPC handlers ----------

type grpcService struct {
	s *Server
}

// Ping handler (for connectivity test)
func (g *grpcService) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("pong from battlefieldd"), nil
}

func (g *grpcService) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := callRequestFromProto(in)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := g.s.Call(ctx, req)
	if err != nil {
		if r != nil {
			return nil, status.Errorf(grpcCode(err), "%v (receipt %s)", err, r.ID)
		}
		return nil, toStatus(err)
	}
	return encode(r)
}

func (g *grpcService) View(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	req, err := viewRequestFromProto(in)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := g.s.View(ctx, req.Contract, req.Method, req.Args)
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := rawToValue(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return v, nil
}

func (g *grpcService) Receipt(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	r, err := g.s.GetReceipt(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(r)
}

func (g *grpcService) State(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := g.s.State(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(snap)
}

func (g *grpcService) Balance(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	acc, err := g.s.Balance(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(acc)
}

func encode(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	return status.Error(grpcCode(err), err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, contract.ErrMethodNotFound):
		return codes.NotFound
	case errors.Is(err, contract.ErrTransferFailed):
		return codes.Aborted
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, contract.ErrInvalidArguments),
		errors.Is(err, contract.ErrUnexpectedValueAttached):
		return codes.InvalidArgument
	case errors.Is(err, contract.ErrUninitialized), errors.Is(err, contract.ErrAlreadyInitialized),
		errors.Is(err, contract.ErrProhibitedInView), errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrBalanceOverflow):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
