package daemonsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/neuromance/neuromance-go/internal/convmgr"
	"github.com/neuromance/neuromance-go/internal/daemonrpc"
	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/storage"
)

// socketMode is spec.md §4.6's required permission on the Unix-domain
// socket file: owner read/write only.
const socketMode = 0o600

// Server implements daemonrpc.Server over internal/convmgr.Manager and
// internal/storage.Store, grounded on internal/gateway/grpc_service.go's
// status-mapping shape (spec.md §4.6).
type Server struct {
	store     *storage.Store
	manager   *convmgr.Manager
	startedAt time.Time
	activity  *activityTracker

	grpcServer *grpc.Server
}

// New constructs a Server. idleTimeout <= 0 disables the inactivity
// shutdown task entirely (spec.md §4.6).
func New(store *storage.Store, manager *convmgr.Manager, idleTimeout time.Duration) *Server {
	return &Server{
		store:     store,
		manager:   manager,
		startedAt: time.Now(),
		activity:  newActivityTracker(idleTimeout),
	}
}

// Serve binds the Unix-domain socket, writes the PID file, and blocks
// serving RPCs until ctx is cancelled, an explicit Shutdown RPC fires, or
// the inactivity timer expires. It always cleans up the socket and PID file
// before returning (spec.md §4.6 "socket and PID file removed on clean
// shutdown").
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("unix", s.store.SocketPath())
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeStorageIO, fmt.Errorf("listen on socket: %w", err))
	}
	if err := os.Chmod(s.store.SocketPath(), socketMode); err != nil {
		_ = lis.Close()
		return domain.WrapDomainError(domain.ErrCodeStorageIO, fmt.Errorf("chmod socket: %w", err))
	}
	if err := s.store.WritePID(os.Getpid()); err != nil {
		_ = lis.Close()
		return err
	}
	defer func() {
		_ = s.store.RemovePID()
		_ = os.Remove(s.store.SocketPath())
	}()

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.touchUnary),
		grpc.ChainStreamInterceptor(s.touchStream),
	)
	daemonrpc.RegisterServer(s.grpcServer, s)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- s.grpcServer.Serve(lis) }()

	activityCtx, cancelActivity := context.WithCancel(ctx)
	defer cancelActivity()
	go s.activity.Run(activityCtx)

	select {
	case <-ctx.Done():
	case <-s.activity.ShutdownRequested():
		slog.Info("daemon shutting down")
	case err := <-serveErrCh:
		return err
	}

	s.grpcServer.GracefulStop()
	return nil
}

func (s *Server) touchUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	s.activity.Touch()
	return handler(ctx, req)
}

func (s *Server) touchStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	s.activity.Touch()
	return handler(srv, ss)
}

// errToStatus maps a domain.DomainError to a gRPC status per spec.md §4.6,
// §7: ConversationNotFound et al -> NotFound, BookmarkExists -> AlreadyExists,
// NoActiveConversation -> FailedPrecondition, storage failures ->
// Unavailable, everything else -> Internal.
func errToStatus(err error) error {
	if err == nil {
		return nil
	}
	code := domain.CodeOf(err)
	var grpcCode codes.Code
	switch code {
	case domain.ErrCodeConversationNotFound, domain.ErrCodeModelNotFound, domain.ErrCodeBookmarkNotFound:
		grpcCode = codes.NotFound
	case domain.ErrCodeBookmarkExists:
		grpcCode = codes.AlreadyExists
	case domain.ErrCodeNoActiveConversation, domain.ErrCodeInvalidConversationID, domain.ErrCodeAmbiguousShortHash:
		grpcCode = codes.FailedPrecondition
	case domain.ErrCodeStorageIO, domain.ErrCodeCorruptJSON, domain.ErrCodeServiceUnavailable:
		grpcCode = codes.Unavailable
	case domain.ErrCodeAuthentication:
		grpcCode = codes.Unauthenticated
	case domain.ErrCodeRateLimited:
		grpcCode = codes.ResourceExhausted
	case domain.ErrCodeInvalidRequest:
		grpcCode = codes.InvalidArgument
	default:
		grpcCode = codes.Internal
	}
	return status.Error(grpcCode, err.Error())
}

// --- Unary RPCs (spec.md §4.6) ---

func (s *Server) CreateConversation(ctx context.Context, req *daemonrpc.CreateConversationRequest) (*daemonrpc.CreateConversationResponse, error) {
	conv, err := s.manager.CreateConversation(req.Model, req.SystemMessage)
	if err != nil {
		return nil, errToStatus(err)
	}
	model := req.Model
	if model == "" {
		model = s.manager.Config().ActiveModelName()
	}
	return &daemonrpc.CreateConversationResponse{ConversationID: conv.ID, Model: model}, nil
}

func (s *Server) ListConversations(ctx context.Context, req *daemonrpc.ListConversationsRequest) (*daemonrpc.ListConversationsResponse, error) {
	summaries, err := s.manager.ListConversations(req.Limit)
	if err != nil {
		return nil, errToStatus(err)
	}
	resp := &daemonrpc.ListConversationsResponse{Conversations: make([]daemonrpc.ConversationSummary, 0, len(summaries))}
	for _, sum := range summaries {
		resp.Conversations = append(resp.Conversations, daemonrpc.ConversationSummary{
			ConversationID: sum.Conversation.ID,
			Title:          sum.Conversation.Title,
			Model:          sum.Model,
			MessageCount:   len(sum.Conversation.Messages),
			Bookmarks:      sum.Bookmarks,
			UpdatedAtUnix:  sum.Conversation.UpdatedAt.Unix(),
		})
	}
	return resp, nil
}

func (s *Server) GetMessages(ctx context.Context, req *daemonrpc.GetMessagesRequest) (*daemonrpc.GetMessagesResponse, error) {
	messages, total, id, err := s.manager.GetMessages(req.ConversationID, req.Limit)
	if err != nil {
		return nil, errToStatus(err)
	}
	return &daemonrpc.GetMessagesResponse{ConversationID: id, Messages: messages, TotalCount: total}, nil
}

func (s *Server) SetBookmark(ctx context.Context, req *daemonrpc.SetBookmarkRequest) (*daemonrpc.Empty, error) {
	id, err := s.store.ResolveConversationID(req.ConversationID)
	if err != nil {
		return nil, errToStatus(err)
	}
	if err := s.store.SetBookmark(req.Name, id); err != nil {
		return nil, errToStatus(err)
	}
	return &daemonrpc.Empty{}, nil
}

func (s *Server) RemoveBookmark(ctx context.Context, req *daemonrpc.RemoveBookmarkRequest) (*daemonrpc.Empty, error) {
	if err := s.store.RemoveBookmark(req.Name); err != nil {
		return nil, errToStatus(err)
	}
	return &daemonrpc.Empty{}, nil
}

func (s *Server) DeleteConversation(ctx context.Context, req *daemonrpc.DeleteConversationRequest) (*daemonrpc.Empty, error) {
	id, err := s.store.ResolveConversationID(req.ConversationID)
	if err != nil {
		return nil, errToStatus(err)
	}
	if err := s.store.DeleteConversation(id); err != nil {
		return nil, errToStatus(err)
	}
	if _, err := s.store.RemoveBookmarksForConversation(id); err != nil {
		return nil, errToStatus(err)
	}
	if active, ok, err := s.store.GetActiveConversation(); err == nil && ok && active == id {
		_ = s.store.ClearActiveConversation()
	}
	return &daemonrpc.Empty{}, nil
}

func (s *Server) SwitchModel(ctx context.Context, req *daemonrpc.SwitchModelRequest) (*daemonrpc.Empty, error) {
	if _, err := s.manager.SwitchModel(req.ConversationID, req.ModelNickname); err != nil {
		return nil, errToStatus(err)
	}
	return &daemonrpc.Empty{}, nil
}

func (s *Server) ListModels(ctx context.Context, req *daemonrpc.ListModelsRequest) (*daemonrpc.ListModelsResponse, error) {
	profiles := s.manager.Config().AllModels()
	active := s.manager.Config().ActiveModelName()

	resp := &daemonrpc.ListModelsResponse{Models: make([]daemonrpc.ModelSummary, 0, len(profiles))}
	for nickname, p := range profiles {
		resp.Models = append(resp.Models, daemonrpc.ModelSummary{
			Nickname:  nickname,
			Provider:  p.Provider,
			Model:     p.Model,
			APIKeyEnv: p.APIKeyEnv,
			Active:    nickname == active,
		})
	}
	return resp, nil
}

func (s *Server) GetStatus(ctx context.Context, _ *daemonrpc.Empty) (*daemonrpc.StatusResponse, error) {
	ids, err := s.store.ListConversations()
	if err != nil {
		return nil, errToStatus(err)
	}
	active, _, _ := s.store.GetActiveConversation()
	return &daemonrpc.StatusResponse{
		Version:              daemonrpc.ProtocolVersion,
		ActiveConversationID: active,
		ConversationCount:    len(ids),
		UptimeSeconds:        int64(time.Since(s.startedAt).Seconds()),
	}, nil
}

func (s *Server) GetDetailedStatus(ctx context.Context, req *daemonrpc.Empty) (*daemonrpc.DetailedStatusResponse, error) {
	brief, err := s.GetStatus(ctx, req)
	if err != nil {
		return nil, err
	}
	return &daemonrpc.DetailedStatusResponse{
		StatusResponse:   *brief,
		CachedClients:    s.manager.CachedConversations(),
		PendingApprovals: s.manager.PendingApprovalCount(),
		IdleSeconds:      int64(s.activity.IdleFor().Seconds()),
	}, nil
}

func (s *Server) HealthCheck(ctx context.Context, req *daemonrpc.HealthCheckRequest) (*daemonrpc.HealthCheckResponse, error) {
	resp := &daemonrpc.HealthCheckResponse{ServerVersion: daemonrpc.ProtocolVersion, Compatible: true}
	if req.ClientVersion == "" {
		return resp, nil
	}
	serverMajor := majorOf(daemonrpc.ProtocolVersion)
	clientMajor := majorOf(req.ClientVersion)
	if serverMajor != clientMajor {
		resp.Compatible = false
		resp.Warning = fmt.Sprintf("client protocol version %s is incompatible with daemon version %s", req.ClientVersion, daemonrpc.ProtocolVersion)
	}
	return resp, nil
}

func majorOf(version string) string {
	parts := strings.SplitN(version, ".", 2)
	return parts[0]
}

func (s *Server) Shutdown(ctx context.Context, _ *daemonrpc.Empty) (*daemonrpc.Empty, error) {
	s.activity.RequestShutdown()
	return &daemonrpc.Empty{}, nil
}

// --- Chat bidirectional stream (spec.md §4.6) ---

func (s *Server) Chat(stream daemonrpc.ChatServerStream) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.SendMessage == nil {
		return status.Error(codes.InvalidArgument, "first message on a chat stream must be send_message")
	}

	ctx := stream.Context()

	// The bridge task: demultiplex approval responses off the same stream
	// while the message-processing task below blocks inside the chat loop
	// awaiting exactly those replies (spec.md §5 "two subordinate tasks").
	go func() {
		for {
			req, err := stream.Recv()
			if err != nil {
				return
			}
			if req.Approval == nil {
				continue
			}
			a := req.Approval
			verdict := domain.Approval{Verdict: a.Verdict, Reason: a.Reason}
			if err := s.manager.ApproveTool(a.ConversationID, a.ToolCallID, verdict); err != nil {
				slog.Warn("tool approval response did not match a pending request",
					"conversation_id", a.ConversationID, "tool_call_id", a.ToolCallID, "error", err)
			}
		}
	}()

	var sendMu sync.Mutex
	send := func(e *daemonrpc.ChatEvent) error {
		s.activity.Touch()
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.Send(e)
	}

	sink := convmgr.EventSink(func(e convmgr.Event) {
		_ = send(toChatEvent(e))
	})

	runErr := s.manager.SendMessage(ctx, first.SendMessage.ConversationID, first.SendMessage.Content, sink)
	if runErr != nil && domain.CodeOf(runErr) != domain.ErrCodeUserQuit {
		_ = send(&daemonrpc.ChatEvent{
			Kind:         daemonrpc.ChatEventError,
			ErrorCode:    string(domain.CodeOf(runErr)),
			ErrorMessage: runErr.Error(),
		})
		return errToStatus(runErr)
	}
	return nil
}

func toChatEvent(e convmgr.Event) *daemonrpc.ChatEvent {
	switch e.Kind {
	case convmgr.EventStreamChunk:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventStreamChunk, ConversationID: e.ConversationID, ContentDelta: e.ContentDelta}
	case convmgr.EventToolResult:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventToolResult, ConversationID: e.ConversationID, ToolName: e.ToolName, ToolResult: e.ToolResult, ToolSuccess: e.ToolSuccess}
	case convmgr.EventUsage:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventUsage, ConversationID: e.ConversationID, Usage: e.Usage}
	case convmgr.EventToolApprovalRequest:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventToolApprovalRequest, ConversationID: e.ConversationID, ToolCall: e.ToolCall}
	case convmgr.EventMessageCompleted:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventMessageCompleted, ConversationID: e.ConversationID, Message: e.Message}
	default:
		return &daemonrpc.ChatEvent{Kind: daemonrpc.ChatEventError, ConversationID: e.ConversationID, ErrorCode: string(domain.ErrCodeInternal), ErrorMessage: "unknown event kind: " + string(e.Kind)}
	}
}
