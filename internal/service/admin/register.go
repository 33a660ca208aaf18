package admin

import (
	"google.golang.org/grpc"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/server"
)

type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := NewAdminService(r.appCtx)
	s.RegisterService(server.NewServiceDesc(ServiceName,
		server.Unary("CreateInvitation", svc.CreateInvitation),
		server.Unary("ReviewProfile", svc.ReviewProfile),
		server.Unary("ListPending", svc.ListPending),
		server.Unary("GetUserStats", svc.GetUserStats),
		server.Unary("GetOverview", svc.GetOverview),
		server.Unary("MigrateChat", svc.MigrateChat),
	), svc)
}
