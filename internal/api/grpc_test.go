package api

import (
	"context"
	"net"
	"testing"

	"termin/internal/config"
	"termin/internal/models"
	"termin/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T, env *testEnv) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv, err := newGRPCServer(&env.apiCfg, lis, NewAdminService(env.bookings, env.confirmations), nil)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func withKey(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key)
}

func TestGRPCHealth(t *testing.T) {
	conn := startGRPC(t, newTestEnv(t))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: adminServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCCheckSlot(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Ana", "2025-03-10", 10, models.StatusPending)
	client := NewAdminClient(startGRPC(t, env))

	t.Run("Unauthenticated", func(t *testing.T) {
		_, err := client.CheckSlot(context.Background(), "2025-03-10", "11:00")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))

		_, err = client.CheckSlot(withKey("bogus"), "2025-03-10", "11:00")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("Accepted", func(t *testing.T) {
		var header metadata.MD
		out, err := client.CheckSlot(withKey(readerKey), "2025-03-10", "11:00", grpc.Header(&header))
		require.NoError(t, err)
		assert.True(t, out.GetFields()["accepted"].GetBoolValue())
		assert.NotEmpty(t, header.Get(requestIDMetadataKey))
	})

	t.Run("Rejected", func(t *testing.T) {
		out, err := client.CheckSlot(withKey(readerKey), "2025-03-09", "10:00")
		require.NoError(t, err)
		assert.False(t, out.GetFields()["accepted"].GetBoolValue())
		assert.Equal(t, service.RuleSunday, out.GetFields()["rule"].GetStringValue())
		assert.Equal(t, service.ReasonSunday, out.GetFields()["reason"].GetStringValue())

		out, err = client.CheckSlot(withKey(readerKey), "2025-03-10", "10:00")
		require.NoError(t, err)
		assert.Equal(t, service.ReasonDoubleBooked, out.GetFields()["reason"].GetStringValue())
	})

	t.Run("InvalidArgument", func(t *testing.T) {
		_, err := client.CheckSlot(withKey(readerKey), "2025-03-10", "")
		assert.Equal(t, codes.InvalidArgument, status.Code(err))

		_, err = client.CheckSlot(withKey(readerKey), "tomorrow", "10:00")
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestGRPCConfirmBookings(t *testing.T) {
	env := newTestEnv(t)
	pending := env.seed(t, "Ana", "2025-03-10", 10, models.StatusPending)
	conn := startGRPC(t, env)
	client := NewAdminClient(conn)

	_, err := client.ConfirmBookings(withKey(readerKey), []int64{pending.ID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out, err := client.ConfirmBookings(withKey(opsKey), []int64{pending.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.GetFields()["confirmed"].GetNumberValue())
	assert.Equal(t, 0.0, out.GetFields()["failed"].GetNumberValue())
	assert.Equal(t, "1 booking(s) confirmed.", out.GetFields()["message"].GetStringValue())
	require.Len(t, env.mail.messages(), 1)

	// already confirmed: skipped, nothing sent
	out, err = client.ConfirmBookings(withKey(opsKey), []int64{pending.ID})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.GetFields()["confirmed"].GetNumberValue())
	assert.Len(t, env.mail.messages(), 1)

	_, err = client.ConfirmBookings(withKey(opsKey), nil)
	assert.Error(t, err)

	bad, err := structpb.NewList([]any{"seven", 1.5})
	require.NoError(t, err)
	err = conn.Invoke(withKey(opsKey), adminConfirmBookingsMethod, bad, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = conn.Invoke(withKey(opsKey), adminConfirmBookingsMethod, &structpb.ListValue{}, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAuthInterceptorRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			APIKeys: []config.APIClientKey{{Key: "k", Name: "client"}},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	interceptor := NewAuthInterceptor(&cfg).Unary()
	handler := func(_ context.Context, _ any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: adminCheckSlotMethod}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "k"))

	resp, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(ctx, nil, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// health is never gated
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	assert.NoError(t, err)

	_, err = interceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPermissions(t *testing.T) {
	reader := config.APIClientKey{Permissions: []string{" read:bookings "}}
	assert.True(t, allowed(reader, permReadBookings))
	assert.False(t, allowed(reader, permWriteBookings))
	assert.True(t, allowed(reader, ""))
	assert.True(t, allowed(config.APIClientKey{}, permWriteTemplates))

	assert.Equal(t, permReadBookings, requiredPermission(adminCheckSlotMethod))
	assert.Equal(t, permWriteBookings, requiredPermission(adminConfirmBookingsMethod))
	assert.Empty(t, requiredPermission("/other.Service/Method"))
}

func TestBuildTLSConfig(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.ErrorIs(t, err, errTLSKeyPairMissing)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "a.crt", KeyFile: "a.key", RequireClientCert: true})
	assert.ErrorIs(t, err, errTLSClientCAMissing)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.crt", KeyFile: "missing.key"})
	assert.Error(t, err)
}
