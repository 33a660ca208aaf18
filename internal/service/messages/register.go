package messages

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
	svc := NewChatService(r.appCtx)
	s.RegisterService(server.NewServiceDesc(ServiceName,
		server.Unary("SendMessage", svc.SendMessage),
		server.Unary("GetMessages", svc.GetMessages),
		server.Unary("MarkRead", svc.MarkRead),
		server.Unary("MarkDelivered", svc.MarkDelivered),
	), svc)
}
