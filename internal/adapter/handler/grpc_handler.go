package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/zlagoda/internal/auth"
	"github.com/rl1809/zlagoda/internal/core/access"
	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/service"
)

const (
	checkoutServiceName  = "zlagoda.checkout.v1.CheckoutService"
	submitCheckoutMethod = "/" + checkoutServiceName + "/SubmitCheckout"
)

type SubmitCheckoutRequest struct {
	ReceiptNumber string          `json:"receipt_number"`
	CardNumber    *string         `json:"card_number,omitempty"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Tax           decimal.Decimal `json:"tax"`
	Items         []GRPCLineItem  `json:"items"`
}

type GRPCLineItem struct {
	ProductCode string          `json:"product_code"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type SubmitCheckoutResponse struct {
	Receipt domain.Receipt `json:"receipt"`
}

type CheckoutServer interface {
	SubmitCheckout(context.Context, *SubmitCheckoutRequest) (*SubmitCheckoutResponse, error)
}

// CheckoutServiceDesc is registered with grpc.Server.RegisterService.
var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitCheckout", Handler: submitCheckoutHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zlagoda/checkout/v1",
}

func submitCheckoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitCheckoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).SubmitCheckout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitCheckoutMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).SubmitCheckout(ctx, req.(*SubmitCheckoutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

func (c *CheckoutClient) SubmitCheckout(ctx context.Context, in *SubmitCheckoutRequest, opts ...grpc.CallOption) (*SubmitCheckoutResponse, error) {
	out := new(SubmitCheckoutResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, submitCheckoutMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCHandler struct {
	checkout *service.CheckoutService
	logger   *zap.Logger
}

var _ CheckoutServer = (*GRPCHandler)(nil)

func NewGRPCHandler(checkout *service.CheckoutService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{checkout: checkout, logger: logger}
}

func (h *GRPCHandler) SubmitCheckout(ctx context.Context, req *SubmitCheckoutRequest) (*SubmitCheckoutResponse, error) {
	claims, ok := ctx.Value(grpcClaimsKey{}).(*auth.Claims)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	in := domain.CheckoutRequest{
		Header: domain.ReceiptHeader{
			Number:     req.ReceiptNumber,
			EmployeeID: claims.EmployeeID,
			CardNumber: req.CardNumber,
			Total:      req.Total,
			Tax:        req.Tax,
		},
	}
	if req.IssuedAt != nil {
		in.Header.IssuedAt = req.IssuedAt.UTC()
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, domain.LineItem{ProductCode: it.ProductCode, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	header, err := h.checkout.SubmitCheckout(ctx, in)
	if err != nil {
		return nil, grpcStatus(err)
	}

	in.Header = header
	return &SubmitCheckoutResponse{Receipt: domain.Receipt{Header: header, Lines: in.Lines()}}, nil
}

func grpcStatus(err error) error {
	code := codes.Internal
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		code, msg = codes.InvalidArgument, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		code, msg = codes.NotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		code, msg = codes.FailedPrecondition, err.Error()
	case errors.Is(err, domain.ErrLockTimeout):
		code, msg = codes.Unavailable, err.Error()
	case errors.Is(err, domain.ErrConflict):
		code, msg = codes.AlreadyExists, err.Error()
	}
	return status.Error(code, msg)
}

type grpcClaimsKey struct{}

// AuthInterceptor authenticates bearer tokens from the authorization metadata
// and checks the caller may create receipts.
func AuthInterceptor(signer *auth.Signer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		token, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		claims, err := signer.Parse(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if info.FullMethod == submitCheckoutMethod && !access.Can(claims.Role, access.Create, access.Check) {
			return nil, status.Error(codes.PermissionDenied, "access denied")
		}

		return handler(context.WithValue(ctx, grpcClaimsKey{}, claims), req)
	}
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc completed",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}
