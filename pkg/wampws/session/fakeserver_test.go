package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/endpoint"
	"github.com/tsarna/wampws/pkg/wampws/frame"
)

const switchingProtocols = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"\r\n"

// fakeServer is the server half of a net.Pipe, driven by a test script.
type fakeServer struct {
	conn net.Conn
	r    *bufio.Reader

	mu      sync.Mutex
	request string
}

// readRequest consumes the upgrade request up to the blank line.
func (s *fakeServer) readRequest() string {
	var b strings.Builder
	for {
		line, err := s.r.ReadString('\n')
		b.WriteString(line)
		if err != nil || line == "\r\n" {
			break
		}
	}
	s.mu.Lock()
	s.request = b.String()
	s.mu.Unlock()
	return b.String()
}

func (s *fakeServer) Request() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

func (s *fakeServer) write(data string) error {
	_, err := s.conn.Write([]byte(data))
	return err
}

func (s *fakeServer) sendFrame(op frame.Opcode, payload string) error {
	data, err := frame.Encode(op, []byte(payload), false)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(data)
	return err
}

func (s *fakeServer) sendText(payload string) error {
	return s.sendFrame(frame.OpcodeText, payload)
}

// accept answers the handshake and sends a WELCOME for sessionID.
func (s *fakeServer) accept(sessionID string) error {
	s.readRequest()
	if err := s.write(switchingProtocols); err != nil {
		return err
	}
	return s.sendText(`[0, "` + sessionID + `", 1, "fake/1.0"]`)
}

// collect forwards every frame the client sends until the pipe closes.
func (s *fakeServer) collect(frames chan<- *frame.Frame) {
	defer close(frames)
	for {
		f, err := frame.Decode(s.r)
		if err != nil {
			return
		}
		frames <- f
	}
}

type pipeDialer struct {
	t      *testing.T
	script func(*fakeServer)

	dials   atomic.Int32
	mu      sync.Mutex
	servers []*fakeServer
}

func newPipeDialer(t *testing.T, script func(*fakeServer)) *pipeDialer {
	return &pipeDialer{t: t, script: script}
}

func (d *pipeDialer) Dial(ctx context.Context, ep endpoint.Endpoint) (net.Conn, error) {
	d.dials.Add(1)
	client, server := net.Pipe()

	srv := &fakeServer{conn: server, r: bufio.NewReader(server)}
	d.mu.Lock()
	d.servers = append(d.servers, srv)
	d.mu.Unlock()

	go func() {
		defer server.Close()
		d.script(srv)
	}()

	d.t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return client, nil
}

func (d *pipeDialer) server(i int) *fakeServer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.servers[i]
}

// welcomeAndCollect is the common script: accept, then capture client frames.
func welcomeAndCollect(sessionID string, frames chan<- *frame.Frame) func(*fakeServer) {
	return func(s *fakeServer) {
		if err := s.accept(sessionID); err != nil {
			close(frames)
			return
		}
		s.collect(frames)
	}
}

func nextFrame(t *testing.T, frames <-chan *frame.Frame) *frame.Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatal("server stopped before receiving a frame")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return nil
}
