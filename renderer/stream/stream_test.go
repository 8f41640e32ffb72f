package stream

import (
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/renderer"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("schemas", name))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validate(t *testing.T, s *jsonschema.Schema, data []byte) {
	t.Helper()
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v\n%s", err, data)
	}
}

func newTestServer(t *testing.T, cfg config.StreamConfig) (*Server, string) {
	t.Helper()
	s := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := s.Allocate([]renderer.Bucket{
		{Type: 0, Name: "MELEE", Capacity: 2, Model: renderer.Model{Color: color.RGBA{R: 0xff, G: 0x33, B: 0x33, A: 0xff}}},
		{Type: 1, Name: "TANK", Capacity: 1, Model: renderer.Model{Color: color.RGBA{G: 0x44, B: 0xff, A: 0xff}}},
		{Type: 2, Name: "SUPPORT", Capacity: 0},
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	s.SetTransform(0, 0, renderer.Transform{Position: r3.Vec{X: 1, Z: 2}, Yaw: 0.5, Scale: 0.6})
	s.SetTransform(0, 1, renderer.Transform{Position: r3.Vec{X: -3}, Yaw: -1, Scale: 0.6})
	s.SetTransform(1, 0, renderer.Transform{Position: r3.Vec{Z: 9}, Scale: 0.9})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestStreamHelloAndFrames(t *testing.T) {
	helloSchema := compileSchema(t, "hello.schema.json")
	frameSchema := compileSchema(t, "frame.schema.json")

	s, url := newTestServer(t, config.StreamConfig{Every: 2})
	conn := dial(t, url)

	data := read(t, conn)
	validate(t, helloSchema, data)
	var hello HelloMsg
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != TypeHello || len(hello.Units) != 3 || hello.Every != 2 {
		t.Fatalf("hello = %+v", hello)
	}
	if hello.Units[0].Color != "#ff3333" || hello.Units[1].Capacity != 1 {
		t.Errorf("hello units = %+v", hello.Units)
	}
	if s.Clients() != 1 {
		t.Fatalf("Clients = %d, want 1", s.Clients())
	}

	s.EndFrame(3, 50*time.Millisecond) // not a multiple of every
	s.EndFrame(4, 4*time.Second/60)

	data = read(t, conn)
	validate(t, frameSchema, data)
	var frame FrameMsg
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Tick != 4 {
		t.Errorf("first frame tick = %d, want 4", frame.Tick)
	}
	if got := frame.Units[0].Instances[1]; got != [5]float64{-3, 0, 0, -1, 0.6} {
		t.Errorf("MELEE slot 1 = %v", got)
	}
	if got := frame.Units[1].Instances[0]; got != [5]float64{0, 0, 9, 0, 0.9} {
		t.Errorf("TANK slot 0 = %v", got)
	}
	if len(frame.Units[2].Instances) != 0 {
		t.Errorf("SUPPORT instances = %v, want none", frame.Units[2].Instances)
	}
	if s.Sent() != 1 {
		t.Errorf("Sent = %d, want 1", s.Sent())
	}
}

func TestStreamRejectsWhenFull(t *testing.T) {
	_, url := newTestServer(t, config.StreamConfig{Every: 1, MaxClients: 1})

	first := dial(t, url)
	read(t, first) // HELLO; the first client is registered

	second := dial(t, url)
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Errorf("second client read error = %v, want close 1013", err)
	}
}

func TestStreamDropsForSlowClients(t *testing.T) {
	s := NewServer(config.StreamConfig{Every: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &client{out: make(chan []byte, 1)}
	s.clients[c] = struct{}{}

	s.broadcast([]byte("a"))
	s.broadcast([]byte("b"))

	if s.Sent() != 1 || s.Dropped() != 1 {
		t.Errorf("sent/dropped = %d/%d, want 1/1", s.Sent(), s.Dropped())
	}
	if got := string(<-c.out); got != "a" {
		t.Errorf("queued frame = %q, want the first one", got)
	}
}

func TestStreamSkipsEncodingWithoutClients(t *testing.T) {
	s := NewServer(config.StreamConfig{Every: 1}, nil)
	if err := s.Allocate([]renderer.Bucket{{Type: 0, Name: "A", Capacity: 1}}); err != nil {
		t.Fatal(err)
	}
	s.EndFrame(1, time.Second)
	if s.frame.Tick != 0 {
		t.Error("frame encoded with no clients connected")
	}
}
