package server

import "google.golang.org/grpc"

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// PublicRegistrar is implemented by registrars whose service has methods
// callable without a token.
type PublicRegistrar interface {
	PublicMethods() []string
}
