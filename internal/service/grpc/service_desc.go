package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса продаж.
const ServiceName = "sales.v1.SalesService"

const (
	MethodCreateSale = "/" + ServiceName + "/CreateSale"
	MethodGetSale    = "/" + ServiceName + "/GetSale"
	MethodListSales  = "/" + ServiceName + "/ListSales"
	MethodUpdateSale = "/" + ServiceName + "/UpdateSale"
	MethodCancelSale = "/" + ServiceName + "/CancelSale"
	MethodDeleteSale = "/" + ServiceName + "/DeleteSale"
)

// SalesServer реализует серверную сторону sales.v1.SalesService.
// Запросы и ответы передаются как google.protobuf.Struct с JSON-формой saledto.
type SalesServer interface {
	CreateSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSales(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(SalesServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// SalesServiceDesc описывает сервис для grpc.Server без сгенерированного кода.
var SalesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SalesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSale", Handler: unaryHandler(MethodCreateSale, SalesServer.CreateSale)},
		{MethodName: "GetSale", Handler: unaryHandler(MethodGetSale, SalesServer.GetSale)},
		{MethodName: "ListSales", Handler: unaryHandler(MethodListSales, SalesServer.ListSales)},
		{MethodName: "UpdateSale", Handler: unaryHandler(MethodUpdateSale, SalesServer.UpdateSale)},
		{MethodName: "CancelSale", Handler: unaryHandler(MethodCancelSale, SalesServer.CancelSale)},
		{MethodName: "DeleteSale", Handler: unaryHandler(MethodDeleteSale, SalesServer.DeleteSale)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sales/v1/sales_service",
}

// RegisterSalesServer регистрирует реализацию на сервере.
func RegisterSalesServer(s grpc.ServiceRegistrar, srv SalesServer) {
	s.RegisterService(&SalesServiceDesc, srv)
}

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SalesServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SalesServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SalesClient вызывает sales.v1.SalesService.
type SalesClient struct {
	cc grpc.ClientConnInterface
}

func NewSalesClient(cc grpc.ClientConnInterface) *SalesClient {
	return &SalesClient{cc: cc}
}

func (c *SalesClient) CreateSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCreateSale, in, opts)
}

func (c *SalesClient) GetSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetSale, in, opts)
}

func (c *SalesClient) ListSales(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListSales, in, opts)
}

func (c *SalesClient) UpdateSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdateSale, in, opts)
}

func (c *SalesClient) CancelSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCancelSale, in, opts)
}

func (c *SalesClient) DeleteSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeleteSale, in, opts)
}

func (c *SalesClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
