package detection

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DetectMethod is the full method name of the unary detection RPC
const DetectMethod = "/monuguard.detection.v1.DetectionService/Detect"

// DetectionServer is the server side of the detection RPC.
// Requests carry {image, conf_threshold, model, frame_index}; responses carry {detections}.
type DetectionServer interface {
	Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDetectionServer registers srv on a gRPC server
func RegisterDetectionServer(s grpc.ServiceRegistrar, srv DetectionServer) {
	s.RegisterService(&detectionServiceDesc, srv)
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectionServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DetectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectionServer).Detect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var detectionServiceDesc = grpc.ServiceDesc{
	ServiceName: "monuguard.detection.v1.DetectionService",
	HandlerType: (*DetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    detectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "monuguard/detection/v1/detection.proto",
}
