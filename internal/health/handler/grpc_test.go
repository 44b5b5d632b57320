package handler

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"studyhub/backend/internal/kv"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

func TestCheck_NoPingers(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestCheck_PingerSuccess(t *testing.T) {
	srv := NewServer(map[string]Pinger{"kv": kv.NewMemoryStore()}, []string{"studyhub.auth.v1.AuthService"}, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "studyhub.auth.v1.AuthService"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestCheck_PingerFailure(t *testing.T) {
	srv := NewServer(map[string]Pinger{
		"kv": &mockPinger{},
		"db": &mockPinger{pingErr: errors.New("connection refused")},
	}, nil, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestCheck_NilPingerSkipped(t *testing.T) {
	srv := NewServer(map[string]Pinger{"db": nil}, nil, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}
}

func TestCheck_UnknownService(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	_, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}
