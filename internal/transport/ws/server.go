package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"companies.ai/internal/commands"
	"companies.ai/internal/protocol"
	"companies.ai/internal/sim/host"
)

// Users is the part of the host the transport needs to sign players in.
type Users interface {
	UserByName(name string) (host.User, bool)
	AddUser(name string) host.User
	Login(id host.UserID)
	Logout(id host.UserID)
}

type Dispatcher interface {
	Handle(req commands.Request) commands.Reply
}

type Options struct {
	// AdminToken grants admin commands to a HELLO carrying it. Empty
	// disables token admins.
	AdminToken string
	// Admins are user names that are always admins.
	Admins []string
	// AutoRegister creates unknown users on HELLO.
	AutoRegister bool
}

type Server struct {
	users Users
	cmds  Dispatcher
	hub   *Hub
	log   zerolog.Logger
	opts  Options

	upgrader websocket.Upgrader
}

func NewServer(users Users, cmds Dispatcher, hub *Hub, opts Options, log zerolog.Logger) *Server {
	return &Server{
		users: users,
		cmds:  cmds,
		hub:   hub,
		log:   log,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, admin := s.handshake(conn)
		if sess == nil {
			return
		}
		log := s.log.With().Str("session_id", sess.id).Str("user_id", string(sess.user)).Logger()
		log.Info().Bool("admin", admin).Msg("session opened")

		s.hub.add(sess)
		s.users.Login(sess.user)
		defer func() {
			if s.hub.remove(sess) {
				s.users.Logout(sess.user)
			}
			log.Info().Msg("session closed")
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			res, ok := s.handleMessage(sess.user, admin, msg)
			if !ok {
				continue
			}
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleMessage runs one CMD. Non-command messages are ignored.
func (s *Server) handleMessage(user host.UserID, admin bool, msg []byte) (protocol.ResultMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewResult("", false, protocol.ErrProtoBadRequest, "malformed message"), true
	}
	if base.Type != protocol.TypeCmd {
		return protocol.ResultMsg{}, false
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return protocol.NewResult("", false, protocol.ErrProtoBadRequest, "malformed CMD"), true
	}
	if cmd.ProtocolVersion != protocol.Version {
		return protocol.NewResult(cmd.ID, false, protocol.ErrProtoBadRequest, "bad protocol_version"), true
	}
	if strings.TrimSpace(cmd.ID) == "" || strings.TrimSpace(cmd.Command) == "" {
		return protocol.NewResult(cmd.ID, false, protocol.ErrProtoBadRequest, "CMD needs id and command"), true
	}
	reply := s.cmds.Handle(commands.Request{
		User:    user,
		Admin:   admin,
		Command: strings.ToLower(cmd.Command),
		Args:    cmd.Args,
	})
	return protocol.NewResult(cmd.ID, reply.OK, reply.Code, reply.Message), true
}

func (s *Server) handshake(conn *websocket.Conn) (*session, bool) {
	reject := func(reason string) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject("expected HELLO")
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject("malformed HELLO")
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		reject("bad protocol_version")
		return nil, false
	}
	name := strings.TrimSpace(hello.UserName)
	if name == "" {
		reject("missing user_name")
		return nil, false
	}

	u, found := s.users.UserByName(name)
	switch {
	case found && u.Synthetic:
		reject("user cannot sign in")
		return nil, false
	case !found && !s.opts.AutoRegister:
		reject("unknown user")
		return nil, false
	case !found:
		u = s.users.AddUser(name)
		s.log.Info().Str("user_id", string(u.ID)).Str("user", u.Name).Msg("registered user")
	}

	admin := s.isAdmin(u.Name, hello.Auth)

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	sess := &session{
		id:   uuid.NewString(),
		user: u.ID,
		out:  make(chan []byte, maxQ),
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		UserID:          string(u.ID),
		UserName:        u.Name,
		Admin:           admin,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, false
	}
	return sess, admin
}

func (s *Server) isAdmin(name string, auth *protocol.HelloAuth) bool {
	for _, a := range s.opts.Admins {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	if s.opts.AdminToken == "" || auth == nil {
		return false
	}
	return strings.TrimSpace(auth.Token) == s.opts.AdminToken
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
