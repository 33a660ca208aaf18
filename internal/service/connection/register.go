package connection

import (
	"google.golang.org/grpc"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/server"
)

// Registrar ties the Connection service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := NewConnectionService(r.appCtx)
	s.RegisterService(server.NewServiceDesc(ServiceName,
		server.Unary("ListConnections", svc.ListConnections),
		server.Unary("GetConnection", svc.GetConnection),
		server.Unary("UpdateStatus", svc.UpdateStatus),
		server.Unary("Unmatch", svc.Unmatch),
	), svc)
}
