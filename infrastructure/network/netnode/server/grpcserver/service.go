package grpcserver

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName         = "netnode.P2P"
	messageStreamMethod = "/" + serviceName + "/MessageStream"
)

// p2pServiceServer is the server API for the P2P service.
type p2pServiceServer interface {
	MessageStream(stream grpcStream) error
}

// grpcStream is implemented by both sides of a MessageStream. Every frame is an
// encoded appmessage.
type grpcStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

var p2pServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*p2pServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "MessageStream",
			Handler:       messageStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "p2p.proto",
}

func messageStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(p2pServiceServer).MessageStream(&messageStreamServer{stream})
}

type messageStreamServer struct {
	grpc.ServerStream
}

func (x *messageStreamServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *messageStreamServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type messageStreamClient struct {
	grpc.ClientStream
}

func (x *messageStreamClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *messageStreamClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
