package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ServiceName: полное имя административного сервиса.
const ServiceName = "storefront.v1.FulfillmentAdmin"

const (
	methodGetOrder       = "/" + ServiceName + "/GetOrder"
	methodListOrders     = "/" + ServiceName + "/ListOrders"
	methodSetOrderStatus = "/" + ServiceName + "/SetOrderStatus"
	methodDeleteOrder    = "/" + ServiceName + "/DeleteOrder"
	methodProductRating  = "/" + ServiceName + "/ProductRating"
)

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type ListOrdersRequest struct {
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type SetOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Actor   string `json:"actor,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type DeleteOrderRequest struct {
	OrderID string `json:"order_id"`
	Actor   string `json:"actor,omitempty"`
}

type ProductRatingRequest struct {
	ProductID string `json:"product_id"`
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Occurred string `json:"occurred"`
}

type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	UserName      string      `json:"user_name"`
	Status        string      `json:"status"`
	TotalAmount   string      `json:"total_amount"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Items         []OrderItem `json:"items"`
	Version       int64       `json:"version"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

type GetOrderResponse struct {
	Order    Order           `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

type ListOrdersResponse struct {
	Orders     []Order `json:"orders"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
}

type SetOrderStatusResponse struct {
	Order Order `json:"order"`
}

type DeleteOrderResponse struct {
	OrderID string `json:"order_id"`
}

type ProductRatingResponse struct {
	ProductID string  `json:"product_id"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
}

// FulfillmentAdminServer: серверная сторона административного API.
type FulfillmentAdminServer interface {
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	SetOrderStatus(context.Context, *SetOrderStatusRequest) (*SetOrderStatusResponse, error)
	DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error)
	ProductRating(context.Context, *ProductRatingRequest) (*ProductRatingResponse, error)
}

// RegisterFulfillmentAdminServer регистрирует реализацию на gRPC сервере.
func RegisterFulfillmentAdminServer(s grpc.ServiceRegistrar, srv FulfillmentAdminServer) {
	s.RegisterService(&FulfillmentAdminServiceDesc, srv)
}

// FulfillmentAdminServiceDesc описывает унарные методы сервиса. Сообщения
// идут стандартным proto-кодеком по схеме ProtoFile.
var FulfillmentAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FulfillmentAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetOrder", Handler: unaryHandler(methodGetOrder, FulfillmentAdminServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(methodListOrders, FulfillmentAdminServer.ListOrders)},
		{MethodName: "SetOrderStatus", Handler: unaryHandler(methodSetOrderStatus, FulfillmentAdminServer.SetOrderStatus)},
		{MethodName: "DeleteOrder", Handler: unaryHandler(methodDeleteOrder, FulfillmentAdminServer.DeleteOrder)},
		{MethodName: "ProductRating", Handler: unaryHandler(methodProductRating, FulfillmentAdminServer.ProductRating)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}

// unaryHandler декодирует dynamicpb-запрос в Req, а ответ Resp кодирует обратно
// в сообщение схемы. Интерсепторы видят Go-структуру запроса.
func unaryHandler[Req, Resp any](fullMethod string, call func(FulfillmentAdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		method := methodDescriptor(fullMethod)
		wireIn := dynamicpb.NewMessage(method.Input())
		if err := dec(wireIn); err != nil {
			return nil, err
		}
		in := new(Req)
		if err := fromWire(wireIn, in); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		server := srv.(FulfillmentAdminServer)
		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := call(server, ctx, req.(*Req))
			if err != nil {
				return nil, err
			}
			out, err := toWire(resp, method.Output())
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

// FulfillmentAdminClient — клиент административного API.
type FulfillmentAdminClient struct {
	cc grpc.ClientConnInterface
}

// NewFulfillmentAdminClient создаёт клиента поверх соединения.
func NewFulfillmentAdminClient(cc grpc.ClientConnInterface) *FulfillmentAdminClient {
	return &FulfillmentAdminClient{cc: cc}
}

func (c *FulfillmentAdminClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, methodGetOrder, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentAdminClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, methodListOrders, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentAdminClient) SetOrderStatus(ctx context.Context, in *SetOrderStatusRequest, opts ...grpc.CallOption) (*SetOrderStatusResponse, error) {
	out := new(SetOrderStatusResponse)
	if err := c.invoke(ctx, methodSetOrderStatus, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentAdminClient) DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error) {
	out := new(DeleteOrderResponse)
	if err := c.invoke(ctx, methodDeleteOrder, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentAdminClient) ProductRating(ctx context.Context, in *ProductRatingRequest, opts ...grpc.CallOption) (*ProductRatingResponse, error) {
	out := new(ProductRatingResponse)
	if err := c.invoke(ctx, methodProductRating, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentAdminClient) invoke(ctx context.Context, fullMethod string, in, out any, opts []grpc.CallOption) error {
	method := methodDescriptor(fullMethod)
	req, err := toWire(in, method.Input())
	if err != nil {
		return err
	}
	reply := dynamicpb.NewMessage(method.Output())
	if err := c.cc.Invoke(ctx, fullMethod, req, reply, opts...); err != nil {
		return err
	}
	return fromWire(reply, out)
}
