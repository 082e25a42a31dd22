package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
)

const (
	StockServiceName = "stock.v1.StockService"

	// JSONContentSubtype selects the JSON codec, e.g. grpc.CallContentSubtype(JSONContentSubtype).
	JSONContentSubtype = "json"

	tenantMetadataKey = "x-tenant-id"
)

// jsonCodec carries messages as JSON so the service needs no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONContentSubtype }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ReserveRequest struct {
	ItemCode      string `json:"itemCode"`
	Quantity      int    `json:"quantity"`
	WarehouseCode string `json:"warehouseCode,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type ReleaseRequest struct {
	ItemCode      string `json:"itemCode"`
	Quantity      int    `json:"quantity"`
	WarehouseCode string `json:"warehouseCode,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

type SummaryRequest struct {
	ItemCode string `json:"itemCode,omitempty"`
}

type SummaryResponse struct {
	Items []domain.ItemSummary `json:"items"`
}

type OrderRequest struct {
	OrderID   string `json:"orderId"`
	Reference string `json:"reference,omitempty"`
}

type StockServiceServer interface {
	Reserve(context.Context, *ReserveRequest) (*domain.ReservationResult, error)
	Release(context.Context, *ReleaseRequest) (*domain.ReleaseResult, error)
	Summary(context.Context, *SummaryRequest) (*SummaryResponse, error)
	OrderReservations(context.Context, *OrderRequest) (*domain.OrderReservations, error)
	ReleaseOrder(context.Context, *OrderRequest) (*domain.OrderReleaseResult, error)
}

type GRPCHandler struct {
	stock   *service.StockService
	summary *service.SummaryService
	log     *zap.Logger
}

func NewGRPCHandler(stock *service.StockService, summary *service.SummaryService, log *zap.Logger) *GRPCHandler {
	return &GRPCHandler{stock: stock, summary: summary, log: log}
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&stockServiceDesc, srv)
}

func (h *GRPCHandler) Reserve(ctx context.Context, req *ReserveRequest) (*domain.ReservationResult, error) {
	result, err := h.stock.Reserve(ctx, domain.ReserveRequest{
		TenantID:      tenantFromContext(ctx),
		ItemCode:      req.ItemCode,
		Quantity:      req.Quantity,
		WarehouseCode: req.WarehouseCode,
		Reference:     req.Reference,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return result, nil
}

func (h *GRPCHandler) Release(ctx context.Context, req *ReleaseRequest) (*domain.ReleaseResult, error) {
	result, err := h.stock.Release(ctx, domain.ReleaseRequest{
		TenantID:      tenantFromContext(ctx),
		ItemCode:      req.ItemCode,
		Quantity:      req.Quantity,
		WarehouseCode: req.WarehouseCode,
		Reference:     req.Reference,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return result, nil
}

func (h *GRPCHandler) Summary(ctx context.Context, req *SummaryRequest) (*SummaryResponse, error) {
	items, err := h.summary.Summary(ctx, tenantFromContext(ctx), req.ItemCode)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &SummaryResponse{Items: items}, nil
}

func (h *GRPCHandler) OrderReservations(ctx context.Context, req *OrderRequest) (*domain.OrderReservations, error) {
	result, err := h.summary.OrderReservations(ctx, tenantFromContext(ctx), req.OrderID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return result, nil
}

func (h *GRPCHandler) ReleaseOrder(ctx context.Context, req *OrderRequest) (*domain.OrderReleaseResult, error) {
	result, err := h.stock.ReleaseOrder(ctx, tenantFromContext(ctx), req.OrderID, req.Reference)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return result, nil
}

func tenantFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(tenantMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrMissingTenant):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		h.log.Error("rpc failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

var stockServiceDesc = grpc.ServiceDesc{
	ServiceName: StockServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: reserveHandler},
		{MethodName: "Release", Handler: releaseHandler},
		{MethodName: "Summary", Handler: summaryHandler},
		{MethodName: "OrderReservations", Handler: orderReservationsHandler},
		{MethodName: "ReleaseOrder", Handler: releaseOrderHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func reserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StockServiceName + "/Reserve"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).Reserve(ctx, req.(*ReserveRequest))
	})
}

func releaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReleaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).Release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StockServiceName + "/Release"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).Release(ctx, req.(*ReleaseRequest))
	})
}

func summaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SummaryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StockServiceName + "/Summary"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).Summary(ctx, req.(*SummaryRequest))
	})
}

func orderReservationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).OrderReservations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StockServiceName + "/OrderReservations"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).OrderReservations(ctx, req.(*OrderRequest))
	})
}

func releaseOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).ReleaseOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StockServiceName + "/ReleaseOrder"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).ReleaseOrder(ctx, req.(*OrderRequest))
	})
}

// StockServiceClient calls the service over a connection that uses the JSON
// codec.
type StockServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStockServiceClient(cc grpc.ClientConnInterface) *StockServiceClient {
	return &StockServiceClient{cc: cc}
}

// WithTenant attaches the tenant id to outgoing calls.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, tenantMetadataKey, tenantID)
}

func (c *StockServiceClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*domain.ReservationResult, error) {
	out := new(domain.ReservationResult)
	if err := c.invoke(ctx, "Reserve", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*domain.ReleaseResult, error) {
	out := new(domain.ReleaseResult)
	if err := c.invoke(ctx, "Release", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) Summary(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*SummaryResponse, error) {
	out := new(SummaryResponse)
	if err := c.invoke(ctx, "Summary", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) OrderReservations(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*domain.OrderReservations, error) {
	out := new(domain.OrderReservations)
	if err := c.invoke(ctx, "OrderReservations", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) ReleaseOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*domain.OrderReleaseResult, error) {
	out := new(domain.OrderReleaseResult)
	if err := c.invoke(ctx, "ReleaseOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONContentSubtype)}, opts...)
	return c.cc.Invoke(ctx, "/"+StockServiceName+"/"+method, in, out, opts...)
}
