package api

import (
	"context"
	"errors"
	"math"
	"strings"

	"termin/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	adminServiceName           = "termin.admin.v1.AdminService"
	adminCheckSlotMethod       = "/" + adminServiceName + "/CheckSlot"
	adminConfirmBookingsMethod = "/" + adminServiceName + "/ConfirmBookings"
)

// AdminServer is the machine-facing admin API. Messages are protobuf
// well-known types so no generated code is needed on either side.
type AdminServer interface {
	// CheckSlot takes {"date": "YYYY-MM-DD", "time": "HH:MM"} and returns
	// {"accepted": bool, "rule": string, "reason": string}.
	CheckSlot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	// ConfirmBookings takes a list of booking ids and returns
	// {"confirmed": n, "failed": m, "message": string}.
	ConfirmBookings(ctx context.Context, in *structpb.ListValue) (*structpb.Struct, error)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckSlot", Handler: adminCheckSlotHandler},
		{MethodName: "ConfirmBookings", Handler: adminConfirmBookingsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "termin/admin/v1/admin.proto",
}

func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

func adminCheckSlotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).CheckSlot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminCheckSlotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).CheckSlot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func adminConfirmBookingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ConfirmBookings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminConfirmBookingsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ConfirmBookings(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminService implements AdminServer on top of the booking services.
type AdminService struct {
	bookings      *service.BookingService
	confirmations *service.ConfirmationService
}

func NewAdminService(bookings *service.BookingService, confirmations *service.ConfirmationService) *AdminService {
	return &AdminService{bookings: bookings, confirmations: confirmations}
}

func (s *AdminService) CheckSlot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	date := strings.TrimSpace(fields["date"].GetStringValue())
	tod := strings.TrimSpace(fields["time"].GetStringValue())
	if date == "" || tod == "" {
		return nil, status.Error(codes.InvalidArgument, "date and time are required")
	}
	if err := parseSlot(date, tod); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rejection, err := s.bookings.CheckSlot(ctx, date, tod)
	if err != nil {
		return nil, status.Error(codes.Internal, "slot lookup failed")
	}

	return structpb.NewStruct(map[string]any{
		"accepted": rejection.Accepted(),
		"rule":     rejection.Rule,
		"reason":   rejection.Reason,
	})
}

func (s *AdminService) ConfirmBookings(ctx context.Context, in *structpb.ListValue) (*structpb.Struct, error) {
	ids := make([]int64, 0, len(in.GetValues()))
	for _, v := range in.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue <= 0 || n.NumberValue != math.Trunc(n.NumberValue) {
			return nil, status.Error(codes.InvalidArgument, "booking ids must be positive integers")
		}
		ids = append(ids, int64(n.NumberValue))
	}
	if len(ids) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no bookings selected")
	}

	result, err := s.confirmations.ConfirmBookings(ctx, ids)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return structpb.NewStruct(map[string]any{
		"confirmed": result.Confirmed,
		"failed":    result.Failed,
		"message":   result.Message(),
	})
}

// AdminClient calls AdminService over an existing connection.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) CheckSlot(ctx context.Context, date, tod string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"date": date, "time": tod})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, adminCheckSlotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) ConfirmBookings(ctx context.Context, ids []int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if len(ids) == 0 {
		return nil, errors.New("no booking ids")
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = float64(id)
	}
	in, err := structpb.NewList(values)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, adminConfirmBookingsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
