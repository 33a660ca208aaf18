// Package servicetest builds a fully wired application on SQLite and
// miniredis and serves it over an in-memory gRPC listener.
package servicetest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

// Env is one test's application.
type Env struct {
	App   *app.AppContext
	Redis *miniredis.Miniredis
}

// New wires an application with a daily cap of 3 likes. Profiles are not
// seeded; use testutil.SeedProfiles on env.App.DB.
func New(t *testing.T) *Env {
	t.Helper()

	gdb := testutil.NewDB(t)
	rc, mr := testutil.NewRedis(t)
	log := logger.Discard()

	cfg := config.New()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Match.DailyLikeCap = 3
	cfg.Match.AllowRediscovery = true

	a := app.New(cfg, app.Deps{
		DB:         gdb,
		RedisCache: rc,
		Threads:    repository.NewChatThreadRepository(gdb),
		Events:     events.NewLogPublisher(log),
		Logger:     log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Hub.Run(ctx)
	t.Cleanup(cancel)

	return &Env{App: a, Redis: mr}
}

// Dial serves registrars on a bufconn listener and returns a client that
// speaks the JSON codec.
func (e *Env) Dial(t *testing.T, registrars ...server.Registrar) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(e.App.Logger, e.App.Verifier, registrars...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// As returns a context carrying a bearer token for userID.
func (e *Env) As(t *testing.T, userID uint64, role auth.Role) context.Context {
	t.Helper()
	token, err := e.App.Verifier.Sign(auth.Principal{UserID: userID, Role: role}, time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

// Principal returns a context that already carries p, for calling service
// methods directly.
func Principal(userID uint64, role auth.Role) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: userID, Role: role})
}
