package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codecollab/internal/protocol"
	"codecollab/internal/rooms"
	"codecollab/internal/services/executor"
)

const dispatchTimeout = 1900 * time.Millisecond

var (
	errInvalidJoin    = errors.New("room id and user name are required")
	errNotJoined      = errors.New("not_joined")
	errRoomMismatch   = errors.New("room_mismatch")
	errUnsupportedLng = errors.New("unsupported_language")
	errMissingRoom    = errors.New("room id is required")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WsServer struct {
	registry   *rooms.Registry
	execSvc    executor.IExecutionService
	router     *Router
	sendBuffer int
}

func NewWsServer(reg *rooms.Registry, execSvc executor.IExecutionService, sendBuffer int) *WsServer {
	srv := &WsServer{
		registry:   reg,
		execSvc:    execSvc,
		router:     NewRouter(),
		sendBuffer: sendBuffer,
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	conn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	connID := fmt.Sprintf("%s-%d", conn.RemoteAddr(), time.Now().UnixNano())
	cc := newClientConn(conn, s.sendBuffer)

	go cc.writePump()
	go s.reader(connID, cc)
}

// ---------------------------------------------------------------------------
//  Session state machine
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 join --------------------------------------------------------------
	Register(
		s.router,
		protocol.EventJoin,
		func(ctx context.Context, sess *session, req protocol.JoinRequest) (protocol.AckBody, error) {
			if req.RoomID == "" || req.UserName == "" {
				return protocol.AckBody{}, errInvalidJoin
			}
			// One room at a time: joining while joined leaves the old
			// room first, even when re-joining the same id.
			if sess.joined() {
				s.registry.Leave(sess.roomID, sess.connID)
			}
			s.registry.Join(req.RoomID, sess.connID, req.UserName, sess.conn)
			sess.enterRoom(req.RoomID, req.UserName)
			return protocol.AckBody{}, nil
		},
	)

	// 🔹 leaveRoom ---------------------------------------------------------
	Register(
		s.router,
		protocol.EventLeaveRoom,
		func(ctx context.Context, sess *session, _ protocol.AckBody) (protocol.AckBody, error) {
			// Idempotent: a second leave is a plain ack.
			if sess.joined() {
				s.registry.Leave(sess.roomID, sess.connID)
				sess.exitRoom()
			}
			return protocol.AckBody{}, nil
		},
	)

	// 🔹 codeChange --------------------------------------------------------
	Register(
		s.router,
		protocol.EventCodeChange,
		func(ctx context.Context, sess *session, req protocol.CodeChangeRequest) (protocol.AckBody, error) {
			if err := sess.requireRoom(req.RoomID); err != nil {
				return protocol.AckBody{}, err
			}
			s.registry.SetDocument(sess.roomID, sess.connID, req.Code)
			return protocol.AckBody{}, nil
		},
	)

	// 🔹 typing ------------------------------------------------------------
	Register(
		s.router,
		protocol.EventTyping,
		func(ctx context.Context, sess *session, req protocol.TypingRequest) (protocol.AckBody, error) {
			if err := sess.requireRoom(req.RoomID); err != nil {
				return protocol.AckBody{}, err
			}
			s.registry.Typing(sess.roomID, sess.connID)
			return protocol.AckBody{}, nil
		},
	)

	// 🔹 languageChange ----------------------------------------------------
	Register(
		s.router,
		protocol.EventLanguageChange,
		func(ctx context.Context, sess *session, req protocol.LanguageChangeRequest) (protocol.AckBody, error) {
			if err := sess.requireRoom(req.RoomID); err != nil {
				return protocol.AckBody{}, err
			}
			if !executor.Supported(req.Language) {
				return protocol.AckBody{}, errUnsupportedLng
			}
			s.registry.SetLanguage(sess.roomID, sess.connID, req.Language)
			return protocol.AckBody{}, nil
		},
	)

	// 🔹 compileCode -------------------------------------------------------
	// Allowed in any session state; touches no membership or document
	// state. The external call runs in its own goroutine so neither the
	// reader loop nor any room lock waits on the runner.
	Register(
		s.router,
		protocol.EventCompileCode,
		func(ctx context.Context, sess *session, req protocol.CompileRequest) (protocol.AckBody, error) {
			if req.RoomID == "" {
				return protocol.AckBody{}, errMissingRoom
			}
			if !executor.Supported(req.Language) {
				return protocol.AckBody{}, errUnsupportedLng
			}
			go s.runCode(req)
			return protocol.AckBody{}, nil
		},
	)
}

// requireRoom gates room-scoped events: the session must be joined, and
// a payload that names a different room than the one the session is in
// is rejected rather than applied elsewhere.
func (s *session) requireRoom(roomID string) error {
	if !s.joined() {
		return errNotJoined
	}
	if roomID != "" && roomID != s.roomID {
		return errRoomMismatch
	}
	return nil
}

// runCode invokes the execution service and broadcasts exactly one
// codeResponse to the whole room, requester included. Failures become a
// broadcast error output, never a dropped request.
func (s *WsServer) runCode(req protocol.CompileRequest) {
	res, err := s.execSvc.Execute(context.Background(), req.Language, req.Version, req.Code)
	if err != nil {
		zap.L().Warn("ws.compile",
			zap.String("room", req.RoomID), zap.String("language", req.Language), zap.Error(err))
		res = executor.FallbackResult(err)
	}
	s.registry.BroadcastAll(req.RoomID, protocol.CodeResponse(res.Output))
}

// ---------------------------------------------------------------------------
//  Reader loop
// ---------------------------------------------------------------------------

func (s *WsServer) reader(connID string, cc *clientConn) {
	sess := &session{connID: connID, conn: cc}

	defer func() {
		// Abrupt disconnect behaves exactly like leaveRoom.
		if sess.joined() {
			s.registry.Leave(sess.roomID, sess.connID)
		}
		cc.Close()
	}()

	cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	cc.conn.SetPongHandler(func(string) error {
		cc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("conn", connID), zap.Error(err))
			}
			return // client closed or errored
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			cc.Enqueue(protocol.Error("malformed_frame"))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		res, err := s.router.dispatch(ctx, sess, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			cc.Enqueue(protocol.Error(err.Error()))
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} ---------
		cc.Enqueue(protocol.Ack(env.Event, res))
	}
}
