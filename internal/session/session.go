package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-gateway/internal/bus"
	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/pagination"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
)

// StaffDirectory lists the staff identities that receive support room
// broadcasts.
type StaffDirectory interface {
	IDs() []int
}

// AttachmentValidator checks an attachment before it is linked.
type AttachmentValidator interface {
	Validate(a models.Attachment) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Rooms       repositories.RoomRepository
	Messages    repositories.MessageRepository
	Attachments repositories.AttachmentRepository
	Favorites   repositories.FavoriteRepository
	Bus         bus.Bus
	Staff       StaffDirectory
	Validator   AttachmentValidator
	Audit       *telemetry.AuditEmitter
	Log         *zap.Logger

	PageSize    int
	ActionRate  rate.Limit
	ActionBurst int
}

type lifecycle int

const (
	stateConnecting lifecycle = iota
	stateConnected
	stateDisconnected
)

// roomState is either noRoom or inRoom.
type roomState interface {
	isRoomState()
}

type noRoom struct{}

type inRoom struct {
	room models.Room
}

func (noRoom) isRoomState() {}
func (inRoom) isRoomState() {}

// reply is a successful action result. A reply with groups is broadcast to
// those groups instead of being sent to the caller alone.
type reply struct {
	status int
	data   any
	groups []string
}

// Session is the per-connection state machine. Handle must be called from
// a single goroutine.
type Session struct {
	conn        bus.Member
	identity    models.Identity
	profile     *Profile
	deps        Deps
	requestID   string
	state       lifecycle
	room        roomState
	memberships map[int]struct{}
	cursors     *pagination.Cache
	limiter     *rate.Limiter
	log         *zap.Logger
}

// New creates a session in the connecting state.
func New(conn bus.Member, identity models.Identity, profile *Profile, deps Deps, requestID string) *Session {
	limit, burst := deps.ActionRate, deps.ActionBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 100
	}
	return &Session{
		conn:        conn,
		identity:    identity,
		profile:     profile,
		deps:        deps,
		requestID:   requestID,
		state:       stateConnecting,
		room:        noRoom{},
		memberships: make(map[int]struct{}),
		cursors:     pagination.NewCache(),
		limiter:     rate.NewLimiter(limit, burst),
		log: deps.Log.With(
			zap.String("conn_id", conn.ID()),
			zap.Int("user_id", identity.ID),
			zap.String("protocol", profile.Protocol),
		),
	}
}

// Identity implements policy.State.
func (s *Session) Identity() models.Identity {
	return s.identity
}

// CurrentRoom implements policy.State.
func (s *Session) CurrentRoom() (models.Room, bool) {
	if r, ok := s.room.(inRoom); ok {
		return r.room, true
	}
	return models.Room{}, false
}

// IsMember implements policy.State. The membership snapshot taken at
// connect time is refreshed from storage on a miss.
func (s *Session) IsMember(ctx context.Context, roomID int) (bool, error) {
	if _, ok := s.memberships[roomID]; ok {
		return true, nil
	}
	if err := s.refreshMemberships(ctx); err != nil {
		return false, err
	}
	_, ok := s.memberships[roomID]
	return ok, nil
}

func (s *Session) refreshMemberships(ctx context.Context) error {
	ids, err := s.deps.Rooms.ListRoomIDsForUser(ctx, s.identity.ID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}
	next := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.memberships = next
	return nil
}

// Open completes the handshake: the membership snapshot is taken and the
// connection joins the identity's personal group.
func (s *Session) Open(ctx context.Context) error {
	if s.state != stateConnecting {
		return fmt.Errorf("session already opened")
	}
	if err := s.refreshMemberships(ctx); err != nil {
		s.state = stateDisconnected
		return err
	}
	s.deps.Bus.Join(models.PersonalGroup(s.identity.ID), s.conn)
	s.state = stateConnected
	s.log.Debug("session opened", zap.Int("rooms", len(s.memberships)))
	return nil
}

// Close releases every group and cursor. It is safe to call more than once.
func (s *Session) Close() {
	if s.state == stateDisconnected {
		return
	}
	s.deps.Bus.LeaveAll(s.conn)
	s.cursors.DropAll()
	s.room = noRoom{}
	s.state = stateDisconnected
	s.log.Debug("session closed")
}

// Handle processes one inbound frame and sends the outcome.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	start := time.Now()

	req, err := parseRequest(raw)
	if err != nil {
		action := ""
		var requestID *int64
		if req != nil {
			action, requestID = req.Action, req.RequestID
		}
		ae, _ := toActionError(err)
		s.sendError(action, requestID, ae)
		observability.ObserveAction(s.profile.Protocol, "invalid", ae.Status, time.Since(start))
		return
	}

	label := req.Action
	if _, ok := s.profile.actions[req.Action]; !ok {
		label = "unknown"
	}
	ctx, span := otel.Tracer("chat-gateway/session").Start(ctx, "chat."+label)
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.action", req.Action),
		attribute.String("chat.protocol", s.profile.Protocol),
		attribute.Int("chat.user_id", s.identity.ID),
	)

	var status int
	rep, err := s.dispatch(ctx, req)
	if err != nil {
		ae, expected := toActionError(err)
		if !expected {
			s.log.Error("action failed", zap.String("action", req.Action), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.audit(ctx, "ERROR", "chat action failed", req.Action, 0)
		}
		status = ae.Status
		s.sendError(req.Action, req.RequestID, ae)
	} else {
		status = rep.status
		s.send(ctx, req, rep)
	}

	span.SetAttributes(attribute.Int("chat.status", status))
	observability.ObserveAction(s.profile.Protocol, label, status, time.Since(start))
}

func (s *Session) dispatch(ctx context.Context, req *request) (*reply, error) {
	if s.state != stateConnected {
		return nil, forbidden()
	}
	if !s.limiter.Allow() {
		return nil, tooManyRequests()
	}
	spec, ok := s.profile.actions[req.Action]
	if !ok {
		return nil, badRequest("Unknown action %s!", req.Action)
	}
	for _, name := range spec.required {
		if !req.has(name) {
			return nil, badRequest("%s is required!", name)
		}
	}

	args, err := req.policyArgs()
	if err != nil {
		return nil, err
	}
	allowed, err := spec.perm.HasPermission(ctx, s, req.Action, args)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.audit(ctx, "WARN", "chat action denied", req.Action, args.RoomID)
		return nil, forbidden()
	}
	return spec.handle(s, ctx, req)
}

func (s *Session) audit(ctx context.Context, level, text, action string, roomID int) {
	if roomID == 0 {
		if room, ok := s.CurrentRoom(); ok {
			roomID = room.ID
		}
	}
	var userID *int64
	if s.identity.ID != 0 {
		id := int64(s.identity.ID)
		userID = &id
	}
	s.deps.Audit.Emit(ctx, s.requestID, userID, telemetry.AuditPayload{
		Level:  level,
		Text:   text,
		Action: action,
		RoomID: roomID,
	})
}

func (s *Session) send(ctx context.Context, req *request, rep *reply) {
	payload, err := json.Marshal(models.Envelope{
		Errors:         []string{},
		Data:           rep.data,
		Action:         req.Action,
		ResponseStatus: rep.status,
		RequestID:      req.RequestID,
	})
	if err != nil {
		s.log.Error("encode reply", zap.String("action", req.Action), zap.Error(err))
		s.sendError(req.Action, req.RequestID, serverError())
		return
	}

	if len(rep.groups) == 0 {
		s.deliver(payload)
		return
	}
	if err := s.deps.Bus.Broadcast(ctx, payload, rep.groups...); err != nil {
		s.log.Warn("broadcast failed", zap.String("action", req.Action), zap.Error(err))
	}
}

func (s *Session) sendError(action string, requestID *int64, ae *ActionError) {
	payload, err := json.Marshal(models.Envelope{
		Errors:         ae.Messages,
		Data:           nil,
		Action:         action,
		ResponseStatus: ae.Status,
		RequestID:      requestID,
	})
	if err != nil {
		s.log.Error("encode error reply", zap.Error(err))
		return
	}
	s.deliver(payload)
}

func (s *Session) deliver(payload []byte) {
	if !s.conn.Deliver(payload) {
		observability.IncBusDropped()
		s.log.Warn("dropped reply, send queue full")
	}
}

// recipients returns the groups a broadcast about room goes to. Support
// rooms also reach the personal groups of participants and current staff.
func (s *Session) recipients(room models.Room) []string {
	groups := []string{models.RoomGroup(room.ID)}
	if !room.IsSupport() {
		return groups
	}
	for _, id := range room.Participants {
		groups = append(groups, models.PersonalGroup(id))
	}
	if s.deps.Staff != nil {
		for _, id := range s.deps.Staff.IDs() {
			groups = append(groups, models.PersonalGroup(id))
		}
	}
	return groups
}
