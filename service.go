package gwire

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// MethodHandler is a function type that processes a unary RPC method
// call. dec decodes the single request message into the provided value
// and fails if the client sent anything but exactly one message.
type MethodHandler func(srv any, ctx context.Context, dec func(any) error) (any, error)

// StreamHandler processes a streaming RPC using the provided
// ServerStream.
type StreamHandler func(srv any, stream ServerStream) error

// MethodDesc represents a unary RPC method's specification.
type MethodDesc struct {
	MethodName string
	Handler    MethodHandler
}

// StreamDesc represents a streaming RPC method's specification.
// ServerStreams and ClientStreams together select the call shape:
// server-streaming, client-streaming, or bidirectional. A direction
// whose flag is false carries exactly one message, and the engine
// enforces that count before any bytes reach the transport.
type StreamDesc struct {
	StreamName string
	Handler    StreamHandler

	ServerStreams bool
	ClientStreams bool
}

// ServiceDesc represents an RPC service's specification.
type ServiceDesc struct {
	ServiceName string
	// The pointer to the service interface. Used to check whether the user
	// provided implementation satisfies the interface requirements.
	HandlerType any
	Methods     []MethodDesc
	Streams     []StreamDesc
	Metadata    any
}

type serviceInfo struct {
	serviceImpl any
	methods     map[string]*MethodDesc
	streams     map[string]*StreamDesc
	mdata       any
}

// ServiceRegistrar wraps a single method that supports service
// registration. It enables users to pass concrete types other than
// *Server to the service registration methods exported by the IDL
// generated code.
type ServiceRegistrar interface {
	// RegisterService registers a service and its implementation to the
	// concrete type implementing this interface. It may not be called
	// once the server has started serving.
	RegisterService(desc *ServiceDesc, impl any)
}

// RegisterService registers a service and its implementation to the
// server. It is called from the IDL generated code and must be called
// before invoking Serve. If impl is non-nil, its type is checked to
// ensure it implements sd.HandlerType.
func (s *Server) RegisterService(sd *ServiceDesc, impl any) {
	if impl != nil {
		ht := reflect.TypeOf(sd.HandlerType).Elem()
		st := reflect.TypeOf(impl)
		if !st.Implements(ht) {
			zap.L().Fatal(fmt.Sprintf("gwire: Server.RegisterService found the handler of type %v that does not satisfy %v", st, ht))
		}
	}
	s.register(sd, impl)
}

func (s *Server) register(sd *ServiceDesc, impl any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serve {
		zap.L().Fatal("gwire: Server.RegisterService after Server.Serve", zap.String("service", sd.ServiceName))
	}
	if _, ok := s.services[sd.ServiceName]; ok {
		zap.L().Fatal("gwire: Server.RegisterService found duplicate service registration", zap.String("service", sd.ServiceName))
	}

	info := &serviceInfo{
		serviceImpl: impl,
		methods:     make(map[string]*MethodDesc, len(sd.Methods)),
		streams:     make(map[string]*StreamDesc, len(sd.Streams)),
		mdata:       sd.Metadata,
	}

	for i := range sd.Methods {
		d := &sd.Methods[i]
		info.methods[d.MethodName] = d
	}
	for i := range sd.Streams {
		d := &sd.Streams[i]
		info.streams[d.StreamName] = d
	}
	s.services[sd.ServiceName] = info
}
