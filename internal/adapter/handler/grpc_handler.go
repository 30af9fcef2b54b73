package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/core/service"
)

// OrderLifecycleServiceName is the fully qualified gRPC service name.
// Messages are google.protobuf.Struct so internal callers need no generated
// stubs.
const OrderLifecycleServiceName = "tantovale.order.v1.OrderLifecycle"

type OrderLifecycleServer interface {
	TransitionOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecideProposal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var OrderLifecycleServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderLifecycleServiceName,
	HandlerType: (*OrderLifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TransitionOrder", Handler: unaryHandler("TransitionOrder", OrderLifecycleServer.TransitionOrder)},
		{MethodName: "DecideProposal", Handler: unaryHandler("DecideProposal", OrderLifecycleServer.DecideProposal)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", OrderLifecycleServer.GetOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tantovale/order/v1/lifecycle.proto",
}

func RegisterOrderLifecycleServer(s grpc.ServiceRegistrar, srv OrderLifecycleServer) {
	s.RegisterService(&OrderLifecycleServiceDesc, srv)
}

func unaryHandler(method string, call func(OrderLifecycleServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + OrderLifecycleServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderLifecycleServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderLifecycleServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderLifecycleClient calls OrderLifecycle over an existing connection.
type OrderLifecycleClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderLifecycleClient(cc grpc.ClientConnInterface) *OrderLifecycleClient {
	return &OrderLifecycleClient{cc: cc}
}

func (c *OrderLifecycleClient) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+OrderLifecycleServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderLifecycleClient) TransitionOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "TransitionOrder", in, opts...)
}

func (c *OrderLifecycleClient) DecideProposal(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "DecideProposal", in, opts...)
}

func (c *OrderLifecycleClient) GetOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "GetOrder", in, opts...)
}

type GRPCHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) TransitionOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	order, err := h.orderService.TransitionOrder(ctx, service.TransitionInput{
		RequestID: field(req, "request_id"),
		ActorID:   UserIDFromContext(ctx),
		OrderID:   field(req, "order_id"),
		Phase:     field(req, "phase"),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return orderStruct(order)
}

func (h *GRPCHandler) DecideProposal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.orderService.DecideProposal(ctx, service.DecideInput{
		ActorID:    UserIDFromContext(ctx),
		ProposalID: field(req, "proposal_id"),
		Status:     field(req, "status"),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}

	out := map[string]any{
		"proposal_id": res.Proposal.ID,
		"status":      res.Proposal.Status.String(),
	}
	if res.Order != nil {
		out["order_id"] = res.Order.ID
	}
	return structpb.NewStruct(out)
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	order, err := h.orderService.GetOrder(ctx, UserIDFromContext(ctx), field(req, "order_id"))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return orderStruct(order)
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCodeFor(err)
	if code == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func grpcCodeFor(err error) codes.Code {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		switch {
		case errors.Is(err, service.ErrDuplicateRequest):
			return codes.AlreadyExists
		case errors.Is(err, service.ErrConcurrentTransition):
			return codes.Aborted
		default:
			return codes.FailedPrecondition
		}
	default:
		return codes.Internal
	}
}

func field(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

func orderStruct(o *domain.Order) (*structpb.Struct, error) {
	next := make([]any, 0, 2)
	for _, p := range o.Phase.Successors() {
		next = append(next, p.String())
	}
	return structpb.NewStruct(map[string]any{
		"id":               o.ID,
		"item_id":          o.ItemID,
		"buyer_id":         o.BuyerID,
		"seller_id":        o.SellerID,
		"amount_cents":     o.AmountCents,
		"currency":         o.Currency,
		"phase":            o.Phase.String(),
		"next_phases":      next,
		"created_at":       o.CreatedAt.Format(time.RFC3339Nano),
		"phase_changed_at": o.PhaseChangedAt.Format(time.RFC3339Nano),
	})
}

// AuthInterceptor validates the bearer token in the "authorization" metadata
// with the same rules as the session cookie.
func AuthInterceptor(secret []byte, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata is missing")
		}

		tokenString, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid token format")
		}

		userID, err := validateToken(tokenString, secret)
		if err != nil {
			logger.Debug("invalid rpc token", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(WithUserID(ctx, userID), req)
	}
}
