// Package stt provides recognition backends for the session engine.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
	"github.com/voxwire-ai/voxwire-session/pkg/session"
)

// StreamingSTT is a websocket streaming recognizer. Audio goes up as binary
// little-endian 16-bit PCM; results come back as JSON messages carrying
// either a partial or a final transcript.
type StreamingSTT struct {
	apiKey     string
	host       string
	scheme     string
	path       string
	sampleRate int
}

func NewStreamingSTT(apiKey string, sampleRate int) *StreamingSTT {
	return &StreamingSTT{
		apiKey:     apiKey,
		host:       "api.voxwire.ai",
		scheme:     "wss",
		path:       "/v1/listen",
		sampleRate: sampleRate,
	}
}

// SetEndpoint overrides the backend address, e.g. for a self-hosted
// recognizer or tests.
func (s *StreamingSTT) SetEndpoint(scheme, host string) {
	s.scheme = scheme
	s.host = host
}

func (s *StreamingSTT) Name() string {
	return "streaming-stt"
}

// Open dials one recognition stream. The session coordinator owns the
// returned stream and handles reconnection.
func (s *StreamingSTT) Open(ctx context.Context) (session.RecognizerStream, error) {
	u := url.URL{
		Scheme:   s.scheme,
		Host:     s.host,
		Path:     s.path,
		RawQuery: fmt.Sprintf("api_key=%s&sample_rate=%d&encoding=linear16", s.apiKey, s.sampleRate),
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to recognizer: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	return &sttStream{conn: conn}, nil
}

type sttStream struct {
	conn *websocket.Conn
}

type controlMessage struct {
	Type string `json:"type"`
}

func (st *sttStream) Send(ctx context.Context, pcm []int16) error {
	if err := st.conn.Write(ctx, websocket.MessageBinary, audio.PCMToBytes(pcm)); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (st *sttStream) EndUtterance(ctx context.Context) error {
	if err := wsjson.Write(ctx, st.conn, controlMessage{Type: "end_utterance"}); err != nil {
		return fmt.Errorf("failed to send end of utterance: %w", err)
	}
	return nil
}

// Recv blocks for the next recognition update. Messages that decode but
// carry neither a partial nor a final transcript come back as
// session.ErrMalformedMessage so the caller can skip them.
func (st *sttStream) Recv(ctx context.Context) (session.RecognitionResult, error) {
	for {
		messageType, payload, err := st.conn.Read(ctx)
		if err != nil {
			return session.RecognitionResult{}, fmt.Errorf("failed to read from recognizer: %w", err)
		}
		if messageType != websocket.MessageText {
			return session.RecognitionResult{}, session.ErrMalformedMessage
		}

		var res session.RecognitionResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return session.RecognitionResult{}, session.ErrMalformedMessage
		}
		if res.Partial == "" && res.Text == "" {
			// Keep-alives and unknown control frames are not results.
			var ctrl controlMessage
			if json.Unmarshal(payload, &ctrl) == nil && ctrl.Type == "ping" {
				continue
			}
			return session.RecognitionResult{}, session.ErrMalformedMessage
		}
		return res, nil
	}
}

func (st *sttStream) Close() error {
	return st.conn.Close(websocket.StatusNormalClosure, "")
}
