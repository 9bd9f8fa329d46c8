package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "procurement.v1.ApprovalService"

// userIDHeader carries the authenticated caller when a request body omits the actor.
const userIDHeader = "x-user-id"

// ApprovalServiceServer is the server API. Requests and responses are
// google.protobuf.Struct so the service needs no generated stubs.
type ApprovalServiceServer interface {
	ProcessRequisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecideApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DelegateApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessOverride(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessEscalations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateBudget(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(srv ApprovalServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call method) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, h)
		},
	}
}

// ServiceDesc describes ApprovalService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ProcessRequisition", ApprovalServiceServer.ProcessRequisition),
		unary("DecideApproval", ApprovalServiceServer.DecideApproval),
		unary("DelegateApproval", ApprovalServiceServer.DelegateApproval),
		unary("ProcessOverride", ApprovalServiceServer.ProcessOverride),
		unary("ProcessEscalations", ApprovalServiceServer.ProcessEscalations),
		unary("ValidateBudget", ApprovalServiceServer.ValidateBudget),
		unary("GetPendingApprovals", ApprovalServiceServer.GetPendingApprovals),
		unary("GetApprovalHistory", ApprovalServiceServer.GetApprovalHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/v1/approval_service.proto",
}

// GRPCHandler implements ApprovalServiceServer on top of the approval core.
type GRPCHandler struct {
	router     *service.ApprovalRouter
	escalation *service.EscalationService
	override   *service.OverrideService
	logger     zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(router *service.ApprovalRouter, escalation *service.EscalationService, override *service.OverrideService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		router:     router,
		escalation: escalation,
		override:   override,
		logger:     logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register attaches the handler to a gRPC server.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, h)
}

// userID extracts the caller from request metadata, or returns empty string.
func userID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(userIDHeader); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// ProcessRequisition routes a requisition through the approval workflow
func (h *GRPCHandler) ProcessRequisition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := field(in, "requisition_id")
	h.logger.Info().Str("requisition_id", id).Msg("gRPC ProcessRequisition called")

	res, err := h.router.ProcessRequisition(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("requisition_id", id).Msg("Failed to process requisition")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(routingToMap(res))
}

// DecideApproval approves or rejects one approval record
func (h *GRPCHandler) DecideApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := service.DecideRequest{
		ApprovalID: field(in, "approval_id"),
		ActorID:    actor(ctx, in, "actor_id"),
		Approved:   in.GetFields()["approved"].GetBoolValue(),
		Notes:      field(in, "notes"),
	}
	h.logger.Info().
		Str("approval_id", req.ApprovalID).
		Str("actor_id", req.ActorID).
		Bool("approved", req.Approved).
		Msg("gRPC DecideApproval called")

	res, err := h.router.DecideApproval(ctx, req)
	if err != nil {
		h.logger.Error().Err(err).Str("approval_id", req.ApprovalID).Msg("Failed to decide approval")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(decisionToMap(res))
}

// DelegateApproval hands an active approval to another user
func (h *GRPCHandler) DelegateApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := service.DelegateRequest{
		ApprovalID: field(in, "approval_id"),
		FromUserID: actor(ctx, in, "from_user_id"),
		ToUserID:   field(in, "to_user_id"),
		Reason:     field(in, "reason"),
	}
	rec, err := h.router.DelegateApproval(ctx, req)
	if err != nil {
		h.logger.Error().Err(err).Str("approval_id", req.ApprovalID).Msg("Failed to delegate approval")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(approvalToMap(rec))
}

// ProcessOverride applies a captain's emergency override
func (h *GRPCHandler) ProcessOverride(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := field(in, "requisition_id")
	req := service.OverrideRequest{
		CaptainID: actor(ctx, in, "captain_id"),
		Reason:    field(in, "reason"),
	}
	h.logger.Info().Str("requisition_id", id).Str("captain_id", req.CaptainID).Msg("gRPC ProcessOverride called")

	res, err := h.override.ProcessOverride(ctx, id, req)
	if err != nil {
		h.logger.Error().Err(err).Str("requisition_id", id).Msg("Emergency override failed")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(overrideToMap(res))
}

// ProcessEscalations runs one escalation pass on demand
func (h *GRPCHandler) ProcessEscalations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := h.escalation.ProcessEscalations(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Escalation pass failed")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(escalationToMap(report))
}

// ValidateBudget reports budget coverage for a requisition without committing
func (h *GRPCHandler) ValidateBudget(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	check, err := h.router.CheckBudget(ctx, field(in, "requisition_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(budgetToMap(check))
}

// GetPendingApprovals lists the records awaiting a user
func (h *GRPCHandler) GetPendingApprovals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	records, err := h.router.GetPendingApprovals(ctx, actor(ctx, in, "user_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(approvalsToMap(records))
}

// GetApprovalHistory returns the audit trail of a requisition
func (h *GRPCHandler) GetApprovalHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	entries, err := h.router.GetApprovalHistory(ctx, field(in, "requisition_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(auditToMap(entries))
}

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func actor(ctx context.Context, in *structpb.Struct, name string) string {
	if v := field(in, name); v != "" {
		return v
	}
	return userID(ctx)
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// mapErrorToGRPC converts application errors to gRPC status errors
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeClassification:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, err.Error())
	case errors.ErrCodeBudgetExceeded, errors.ErrCodeConfiguration:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
