// Package tts provides synthesis backends for the session engine.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
	"github.com/voxwire-ai/voxwire-session/pkg/session"
)

// StreamingTTS is a websocket streaming synthesizer. A synthesis request goes
// up as JSON; audio comes back as binary little-endian 16-bit PCM chunks at
// the requested sample rate, terminated by an "EOS" text message.
type StreamingTTS struct {
	apiKey string
	host   string
	scheme string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStreamingTTS(apiKey string) *StreamingTTS {
	return &StreamingTTS{
		apiKey: apiKey,
		host:   "api.voxwire.ai",
		scheme: "wss",
	}
}

// SetEndpoint overrides the backend address, e.g. for a self-hosted
// synthesizer or tests.
func (t *StreamingTTS) SetEndpoint(scheme, host string) {
	t.scheme = scheme
	t.host = host
}

func (t *StreamingTTS) Name() string {
	return "streaming-tts"
}

func (t *StreamingTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/v1/speak", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to synthesizer: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	t.conn = conn
	return conn, nil
}

func (t *StreamingTTS) dropConn(conn *websocket.Conn, reason string) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close(websocket.StatusAbnormalClosure, reason)
}

// StreamSynthesize sends one synthesis request and invokes onChunk per audio
// chunk until the backend signals end of stream. The connection is not held
// locked during the read loop, so Abort from another goroutine can close it
// and unblock the pending read.
func (t *StreamingTTS) StreamSynthesize(ctx context.Context, req session.SynthesisRequest, onChunk func(pcm []int16) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"text":        req.Text,
		"voice":       req.Voice,
		"sample_rate": req.SampleRate,
		"encoding":    "linear16",
	}
	if err := wsjson.Write(ctx, conn, payload); err != nil {
		t.dropConn(conn, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, data, err := conn.Read(ctx)
		if err != nil {
			t.dropConn(conn, "failed to read")
			return fmt.Errorf("failed to read from synthesizer: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(audio.BytesToPCM(data)); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(data)
			if msg == "EOS" {
				return nil
			}
			if strings.HasPrefix(msg, "ERR:") {
				return fmt.Errorf("synthesizer error: %s", msg)
			}
		}
	}
}

// Abort stops an in-progress synthesis by closing the underlying connection,
// which unblocks any pending read. The next StreamSynthesize redials.
func (t *StreamingTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusAbnormalClosure, "abort")
		t.conn = nil
		return err
	}
	return nil
}

func (t *StreamingTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
