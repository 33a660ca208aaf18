package profiles

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
	svc := NewProfileService(r.appCtx)
	s.RegisterService(server.NewServiceDesc(ServiceName,
		server.Unary("CreateProfile", svc.CreateProfile),
		server.Unary("GetProfile", svc.GetProfile),
		server.Unary("UpdateProfile", svc.UpdateProfile),
		server.Unary("AddImage", svc.AddImage),
		server.Unary("RemoveImage", svc.RemoveImage),
		server.Unary("Deactivate", svc.Deactivate),
		server.Unary("Discover", svc.Discover),
	), svc)
}

// PublicMethods lets registration through without a token.
func (r *Registrar) PublicMethods() []string {
	return []string{server.FullMethod(ServiceName, "CreateProfile")}
}
