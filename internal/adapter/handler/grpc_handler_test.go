package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/zlagoda/internal/core/access"
	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/service"
)

func newGRPCClient(t *testing.T, s *testServer) *CheckoutClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(nil), AuthInterceptor(s.signer)))
	srv.RegisterService(&CheckoutServiceDesc, NewGRPCHandler(service.NewCheckoutService(s.store), nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewCheckoutClient(conn)
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func grpcRequest(number string, qty int) *SubmitCheckoutRequest {
	return &SubmitCheckoutRequest{
		ReceiptNumber: number,
		Total:         decimal.RequireFromString("10"),
		Tax:           decimal.RequireFromString("2"),
		Items:         []GRPCLineItem{{ProductCode: upcA, Quantity: qty, UnitPrice: decimal.RequireFromString("10")}},
	}
}

func TestGRPCSubmitCheckout(t *testing.T) {
	s := newTestServer(t, time.Second)
	client := newGRPCClient(t, s)
	ctx := withToken(s.token(t, "E001", access.Cashier))

	resp, err := client.SubmitCheckout(ctx, grpcRequest("CHECK001", 2))
	if err != nil {
		t.Fatalf("SubmitCheckout failed: %v", err)
	}
	if resp.Receipt.Header.Number != "CHECK001" || resp.Receipt.Header.EmployeeID != "E001" {
		t.Errorf("unexpected header: %+v", resp.Receipt.Header)
	}
	if len(resp.Receipt.Lines) != 1 || resp.Receipt.Lines[0].Quantity != 2 {
		t.Errorf("unexpected lines: %+v", resp.Receipt.Lines)
	}

	rec, _ := s.store.GetInventory(context.Background(), upcA)
	if rec.Quantity != 3 {
		t.Errorf("expected 3 left, got %d", rec.Quantity)
	}
}

func TestGRPCStatusCodes(t *testing.T) {
	s := newTestServer(t, time.Second)
	client := newGRPCClient(t, s)
	ctx := withToken(s.token(t, "E001", access.Cashier))

	if _, err := client.SubmitCheckout(ctx, grpcRequest("CHECK001", 1)); err != nil {
		t.Fatalf("seed checkout failed: %v", err)
	}

	unknown := grpcRequest("CHECK004", 1)
	unknown.Items[0].ProductCode = "299999999999"

	tests := []struct {
		name string
		req  *SubmitCheckoutRequest
		code codes.Code
	}{
		{"validation", grpcRequest("BAD", 1), codes.InvalidArgument},
		{"insufficient", grpcRequest("CHECK002", 50), codes.FailedPrecondition},
		{"duplicate", grpcRequest("CHECK001", 1), codes.AlreadyExists},
		{"not found", unknown, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SubmitCheckout(ctx, tt.req)
			if got := status.Code(err); got != tt.code {
				t.Errorf("expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
}

func TestGRPCAuth(t *testing.T) {
	s := newTestServer(t, time.Second)
	client := newGRPCClient(t, s)

	_, err := client.SubmitCheckout(context.Background(), grpcRequest("CHECK001", 1))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}

	_, err = client.SubmitCheckout(withToken("garbage"), grpcRequest("CHECK001", 1))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}

	_, err = client.SubmitCheckout(withToken(s.token(t, "E900", access.Manager)), grpcRequest("CHECK001", 1))
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
}

func TestGRPCStatus_HidesStorageDetail(t *testing.T) {
	err := grpcStatus(domain.ErrStorage)
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Errorf("unexpected status: %v", st)
	}
	if status.Code(grpcStatus(domain.ErrLockTimeout)) != codes.Unavailable {
		t.Error("lock timeouts should be Unavailable")
	}
}
