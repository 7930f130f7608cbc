package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"companies.ai/internal/commands"
	"companies.ai/internal/protocol"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host/memhost"
	"companies.ai/internal/sim/sched"
	"companies.ai/internal/sim/tuning"
)

type fixture struct {
	w   *memhost.World
	e   *companies.Engine
	hub *Hub
	url string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	log := zerolog.Nop()
	cfg := tuning.Defaults()
	w := memhost.New(cfg.BaseHomesteadPlots, log)
	sw := tuning.NewSwitches(cfg)
	e, err := companies.New(companies.Deps{Host: w, Switches: sw, Sched: sched.NewManual(log), Log: log})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	hub := NewHub(log)
	w.AddNotifier(hub)
	srv := NewServer(w, commands.New(e, w, sw, log), hub, opts, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{w: w, e: e, hub: hub, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func hello(t *testing.T, c *websocket.Conn, name, token string) protocol.WelcomeMsg {
	t.Helper()
	msg := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, UserName: name}
	if token != "" {
		msg.Auth = &protocol.HelloAuth{Token: token}
	}
	send(t, c, msg)
	var w protocol.WelcomeMsg
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := c.ReadJSON(&w); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if w.Type != protocol.TypeWelcome || w.SessionID == "" {
		t.Fatalf("welcome = %+v", w)
	}
	return w
}

// cmd sends a CMD and returns its RESULT plus any notices received first.
func cmd(t *testing.T, c *websocket.Conn, id, command string, args ...string) (protocol.ResultMsg, []protocol.NoticeMsg) {
	t.Helper()
	send(t, c, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Command: command, Args: args})
	var notices []protocol.NoticeMsg
	for {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, b, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			_ = json.Unmarshal(b, &n)
			notices = append(notices, n)
		case protocol.TypeResult:
			var r protocol.ResultMsg
			_ = json.Unmarshal(b, &r)
			if r.Ref != id {
				t.Fatalf("result ref = %q, want %q", r.Ref, id)
			}
			return r, notices
		}
	}
}

func TestServer_HelloCreateConfirm(t *testing.T) {
	f := newFixture(t, Options{AutoRegister: true})
	c := dial(t, f.url)
	w := hello(t, c, "alice", "")
	if w.Admin || w.UserName != "alice" {
		t.Fatalf("welcome = %+v", w)
	}
	if _, ok := f.w.UserByName("alice"); !ok {
		t.Fatalf("user not registered")
	}

	r, _ := cmd(t, c, "1", "create", "Acme")
	if !r.OK || !strings.Contains(r.Message, "Send 'confirm' to proceed.") {
		t.Fatalf("create = %+v", r)
	}
	r, notices := cmd(t, c, "2", "confirm")
	if !r.OK || r.Message != "You have founded Acme." {
		t.Fatalf("confirm = %+v", r)
	}
	found := false
	for _, n := range notices {
		if n.Message == "alice has founded the company Acme!" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no founding notice in %+v", notices)
	}
	if f.e.Company("Acme") == nil {
		t.Fatalf("company missing")
	}
}

func TestServer_AdminCommandsNeedToken(t *testing.T) {
	f := newFixture(t, Options{AutoRegister: true, AdminToken: "sekret"})

	c := dial(t, f.url)
	hello(t, c, "bob", "wrong")
	r, _ := cmd(t, c, "1", "list")
	if r.OK || r.Code != protocol.ErrNoPermission {
		t.Fatalf("list as player = %+v", r)
	}

	admin := dial(t, f.url)
	if w := hello(t, admin, "root", "sekret"); !w.Admin {
		t.Fatalf("token not honored")
	}
	r, _ = cmd(t, admin, "2", "list")
	if !r.OK {
		t.Fatalf("list as admin = %+v", r)
	}
}

func TestServer_BadCommands(t *testing.T) {
	f := newFixture(t, Options{AutoRegister: true})
	c := dial(t, f.url)
	hello(t, c, "carol", "")

	r, _ := cmd(t, c, "1", "explode")
	if r.Code != protocol.ErrUnknownCommand {
		t.Fatalf("unknown = %+v", r)
	}
	send(t, c, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: "0.1", ID: "2", Command: "status"})
	var res protocol.ResultMsg
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := c.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Ref != "2" || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("version mismatch = %+v", res)
	}
}

func TestServer_RejectsUnknownAndSyntheticUsers(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.w.CreateSynthetic("Acme Legal Person"); err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	for _, name := range []string{"stranger", "Acme Legal Person"} {
		c := dial(t, f.url)
		send(t, c, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, UserName: name})
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("%s: err = %v, want policy close", name, err)
		}
	}
}

func TestServer_LogoutOnLastSession(t *testing.T) {
	f := newFixture(t, Options{AutoRegister: true})
	c := dial(t, f.url)
	w := hello(t, c, "dave", "")
	// A round trip guarantees the session is registered.
	cmd(t, c, "1", "status")
	u, _ := f.w.UserByName("dave")
	if !u.Online || !f.hub.Online(u.ID) {
		t.Fatalf("dave not online")
	}
	_ = c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if u, _ := f.w.UserByName("dave"); !u.Online {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s still online", w.UserID)
}
