package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// The types and interfaces below stand in for what protoc-gen-go-grpc would
// normally generate from a .proto file. Generating that file is explicitly
// out of scope (see spec §1); the service contract it would have produced is
// instead hand-authored here, wired to grpc-go's ServiceDesc/ClientConn
// machinery exactly the way generated code is, just without a codegen pass.

// TaskResponse is SubmitTask's reply: the Task record as the server now sees
// it, with State/SubmitTs/etc. already populated.
type TaskResponse struct {
	Task *WireTask `json:"task"`
}

// CancelRequest identifies the task a client wants to cancel.
type CancelRequest struct {
	TaskId string `json:"task_id"`
}

// CancelResponse reports whether the cancellation flag was actually set.
// False means the task had already reached a terminal state.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// QueryRequest identifies the task a client wants the current status of.
type QueryRequest struct {
	TaskId string `json:"task_id"`
}

// SubscribeRequest identifies the client whose task updates should be
// streamed back.
type SubscribeRequest struct {
	ClientId string `json:"client_id"`
}

// TaskResult is one frame of the ListenResults stream: a task belonging to
// the subscribed client, at whatever state it was in when this update fired.
type TaskResult struct {
	Task *WireTask `json:"task"`
}

// TaskServiceServer is the server-side contract for dts.TaskService.
type TaskServiceServer interface {
	SubmitTask(context.Context, *WireTask) (*TaskResponse, error)
	CancelTask(context.Context, *CancelRequest) (*CancelResponse, error)
	QueryStatus(context.Context, *QueryRequest) (*WireTask, error)
	ListenResults(*SubscribeRequest, TaskService_ListenResultsServer) error
}

// TaskService_ListenResultsServer is the server-side handle for the
// ListenResults server-streaming call.
type TaskService_ListenResultsServer interface {
	Send(*TaskResult) error
	grpc.ServerStream
}

// UnimplementedTaskServiceServer may be embedded by a TaskServiceServer
// implementation to satisfy the interface ahead of any methods this package
// adds later, the same forward-compatibility idiom generated code provides.
type UnimplementedTaskServiceServer struct{}

func (UnimplementedTaskServiceServer) SubmitTask(context.Context, *WireTask) (*TaskResponse, error) {
	return nil, errUnimplemented("SubmitTask")
}

func (UnimplementedTaskServiceServer) CancelTask(context.Context, *CancelRequest) (*CancelResponse, error) {
	return nil, errUnimplemented("CancelTask")
}

func (UnimplementedTaskServiceServer) QueryStatus(context.Context, *QueryRequest) (*WireTask, error) {
	return nil, errUnimplemented("QueryStatus")
}

func (UnimplementedTaskServiceServer) ListenResults(*SubscribeRequest, TaskService_ListenResultsServer) error {
	return errUnimplemented("ListenResults")
}

func errUnimplemented(method string) error {
	return NewKindedError(KindInvariant, "method %s not implemented", method)
}

type taskServiceListenResultsServer struct {
	grpc.ServerStream
}

func (s *taskServiceListenResultsServer) Send(r *TaskResult) error {
	return s.ServerStream.SendMsg(r)
}

// RegisterTaskServiceServer registers srv's handlers on s, the hand-authored
// equivalent of the generated RegisterXxxServer function.
func RegisterTaskServiceServer(s grpc.ServiceRegistrar, srv TaskServiceServer) {
	s.RegisterService(&taskServiceDesc, srv)
}

func taskServiceSubmitTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WireTask)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaskServiceServer).SubmitTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dts.TaskService/SubmitTask"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaskServiceServer).SubmitTask(ctx, req.(*WireTask))
	}
	return interceptor(ctx, in, info, handler)
}

func taskServiceCancelTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaskServiceServer).CancelTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dts.TaskService/CancelTask"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaskServiceServer).CancelTask(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func taskServiceQueryStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaskServiceServer).QueryStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dts.TaskService/QueryStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaskServiceServer).QueryStatus(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func taskServiceListenResultsHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TaskServiceServer).ListenResults(in, &taskServiceListenResultsServer{stream})
}

var taskServiceDesc = grpc.ServiceDesc{
	ServiceName: "dts.TaskService",
	HandlerType: (*TaskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitTask", Handler: taskServiceSubmitTaskHandler},
		{MethodName: "CancelTask", Handler: taskServiceCancelTaskHandler},
		{MethodName: "QueryStatus", Handler: taskServiceQueryStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ListenResults",
			Handler:       taskServiceListenResultsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "dts/task_service.proto",
}

// TaskServiceClient is the client-side contract for dts.TaskService.
type TaskServiceClient interface {
	SubmitTask(ctx context.Context, in *WireTask, opts ...grpc.CallOption) (*TaskResponse, error)
	CancelTask(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error)
	QueryStatus(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (*WireTask, error)
	ListenResults(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (TaskService_ListenResultsClient, error)
}

// TaskService_ListenResultsClient is the client-side handle for the
// ListenResults server-streaming call.
type TaskService_ListenResultsClient interface {
	Recv() (*TaskResult, error)
	grpc.ClientStream
}

type taskServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTaskServiceClient wraps a ClientConn with the TaskService contract,
// defaulting every call to the hand-rolled JSON codec registered in
// pkg/protocol/codec.go.
func NewTaskServiceClient(cc grpc.ClientConnInterface) TaskServiceClient {
	return &taskServiceClient{cc: cc}
}

// DefaultCallOptions selects the "dts-json" codec for a call that didn't
// specify its own content-subtype; used as the default for both generated
// methods here and ad-hoc Invoke/NewStream calls elsewhere in the façade.
func DefaultCallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

func withDefaults(opts []grpc.CallOption) []grpc.CallOption {
	return append(DefaultCallOptions(), opts...)
}

func (c *taskServiceClient) SubmitTask(ctx context.Context, in *WireTask, opts ...grpc.CallOption) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.cc.Invoke(ctx, "/dts.TaskService/SubmitTask", in, out, withDefaults(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *taskServiceClient) CancelTask(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.cc.Invoke(ctx, "/dts.TaskService/CancelTask", in, out, withDefaults(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *taskServiceClient) QueryStatus(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (*WireTask, error) {
	out := new(WireTask)
	if err := c.cc.Invoke(ctx, "/dts.TaskService/QueryStatus", in, out, withDefaults(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *taskServiceClient) ListenResults(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (TaskService_ListenResultsClient, error) {
	stream, err := c.cc.NewStream(ctx, &taskServiceDesc.Streams[0], "/dts.TaskService/ListenResults", withDefaults(opts)...)
	if err != nil {
		return nil, err
	}
	x := &taskServiceListenResultsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type taskServiceListenResultsClient struct {
	grpc.ClientStream
}

func (x *taskServiceListenResultsClient) Recv() (*TaskResult, error) {
	m := new(TaskResult)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
