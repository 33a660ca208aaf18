package match

import (
	"google.golang.org/grpc"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/server"
)

// Registrar ties the Match service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Match service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Match service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := NewMatchService(r.appCtx)
	s.RegisterService(server.NewServiceDesc(ServiceName,
		server.Unary("Swipe", svc.Swipe),
		server.Unary("ListLikedYou", svc.ListLikedYou),
		server.Unary("ListNewLikedYou", svc.ListNewLikedYou),
		server.Unary("CountLikedYou", svc.CountLikedYou),
		server.Unary("GetQuota", svc.GetQuota),
	), svc)
}
