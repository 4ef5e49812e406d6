package vault

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vault.v1.VaultService"

// VaultServiceServer is the server API of vault.v1.VaultService.
type VaultServiceServer interface {
	RequestTransactions(context.Context, *RequestTransactionsRequest) (*TransactionsResponse, error)
	ApproveTransactions(context.Context, *ApproveTransactionsRequest) (*TransactionsResponse, error)
	Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	GetState(context.Context, *GetStateRequest) (*GetStateResponse, error)
	ListVersions(context.Context, *ListVersionsRequest) (*ListVersionsResponse, error)
}

// RegisterVaultServiceServer registers srv on s.
func RegisterVaultServiceServer(s grpc.ServiceRegistrar, srv VaultServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestTransactions", Handler: unaryHandler("RequestTransactions", VaultServiceServer.RequestTransactions)},
		{MethodName: "ApproveTransactions", Handler: unaryHandler("ApproveTransactions", VaultServiceServer.ApproveTransactions)},
		{MethodName: "Execute", Handler: unaryHandler("Execute", VaultServiceServer.Execute)},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", VaultServiceServer.ListTransactions)},
		{MethodName: "GetState", Handler: unaryHandler("GetState", VaultServiceServer.GetState)},
		{MethodName: "ListVersions", Handler: unaryHandler("ListVersions", VaultServiceServer.ListVersions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vault/v1/vault.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler decodes the google.protobuf.Struct on the wire into Req, so
// interceptors and the server see typed messages, and encodes Resp back.
func unaryHandler[Req, Resp any](method string, call func(VaultServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		wire := new(structpb.Struct)
		if err := dec(wire); err != nil {
			return nil, err
		}
		in := new(Req)
		if err := fromStruct(wire, in); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		var (
			out any
			err error
		)
		if interceptor == nil {
			out, err = call(srv.(VaultServiceServer), ctx, in)
		} else {
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(VaultServiceServer), ctx, req.(*Req))
			}
			out, err = interceptor(ctx, in, info, handler)
		}
		if err != nil {
			return nil, err
		}
		resp, err := toStruct(out)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return resp, nil
	}
}

// Client calls vault.v1.VaultService, carrying messages as google.protobuf.Struct.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	wire, err := toStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), wire, reply, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := fromStruct(reply, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (c *Client) RequestTransactions(ctx context.Context, in *RequestTransactionsRequest, opts ...grpc.CallOption) (*TransactionsResponse, error) {
	return invoke[RequestTransactionsRequest, TransactionsResponse](ctx, c, "RequestTransactions", in, opts)
}

func (c *Client) ApproveTransactions(ctx context.Context, in *ApproveTransactionsRequest, opts ...grpc.CallOption) (*TransactionsResponse, error) {
	return invoke[ApproveTransactionsRequest, TransactionsResponse](ctx, c, "ApproveTransactions", in, opts)
}

func (c *Client) Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteResponse, error) {
	return invoke[ExecuteRequest, ExecuteResponse](ctx, c, "Execute", in, opts)
}

func (c *Client) ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsRequest, ListTransactionsResponse](ctx, c, "ListTransactions", in, opts)
}

func (c *Client) GetState(ctx context.Context, in *GetStateRequest, opts ...grpc.CallOption) (*GetStateResponse, error) {
	return invoke[GetStateRequest, GetStateResponse](ctx, c, "GetState", in, opts)
}

func (c *Client) ListVersions(ctx context.Context, in *ListVersionsRequest, opts ...grpc.CallOption) (*ListVersionsResponse, error) {
	return invoke[ListVersionsRequest, ListVersionsResponse](ctx, c, "ListVersions", in, opts)
}
