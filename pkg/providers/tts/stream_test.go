package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
	"github.com/voxwire-ai/voxwire-session/pkg/session"
)

func startTTSServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, req map[string]interface{})) *StreamingTTS {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		handler(r.Context(), conn, req)
	}))
	t.Cleanup(server.Close)

	tts := NewStreamingTTS("test-key")
	tts.SetEndpoint("ws", strings.TrimPrefix(server.URL, "http://"))
	return tts
}

func TestStreamingTTS(t *testing.T) {
	tts := startTTSServer(t, func(ctx context.Context, conn *websocket.Conn, req map[string]interface{}) {
		if req["text"] != "hello" || req["voice"] != "F1" {
			t.Errorf("request = %v", req)
		}
		conn.Write(ctx, websocket.MessageBinary, audio.PCMToBytes([]int16{1, 2, 3}))
		conn.Write(ctx, websocket.MessageBinary, audio.PCMToBytes([]int16{4, 5, 6}))
		conn.Write(ctx, websocket.MessageText, []byte("EOS"))
	})

	var pcm []int16
	req := session.SynthesisRequest{Text: "hello", Voice: "F1", SampleRate: 22050}
	err := tts.StreamSynthesize(context.Background(), req, func(chunk []int16) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pcm) != 6 || pcm[0] != 1 || pcm[5] != 6 {
		t.Fatalf("pcm = %v", pcm)
	}
	tts.Close()
}

func TestStreamingTTSBackendError(t *testing.T) {
	tts := startTTSServer(t, func(ctx context.Context, conn *websocket.Conn, req map[string]interface{}) {
		conn.Write(ctx, websocket.MessageText, []byte("ERR: voice not found"))
	})

	req := session.SynthesisRequest{Text: "hello", Voice: "nope", SampleRate: 22050}
	err := tts.StreamSynthesize(context.Background(), req, func(chunk []int16) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "voice not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamingTTSAbortUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	tts := startTTSServer(t, func(ctx context.Context, conn *websocket.Conn, req map[string]interface{}) {
		conn.Write(ctx, websocket.MessageBinary, audio.PCMToBytes([]int16{1, 2}))
		<-release // never send EOS
	})
	defer close(release)

	started := make(chan struct{})
	done := make(chan error, 1)
	req := session.SynthesisRequest{Text: "long answer", Voice: "F1", SampleRate: 22050}
	go func() {
		done <- tts.StreamSynthesize(context.Background(), req, func(chunk []int16) error {
			select {
			case <-started:
			default:
				close(started)
			}
			return nil
		})
	}()

	<-started
	if err := tts.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("stream ended cleanly despite abort")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not unblock the stream")
	}
}

func TestStreamingTTSChunkErrorStopsStream(t *testing.T) {
	tts := startTTSServer(t, func(ctx context.Context, conn *websocket.Conn, req map[string]interface{}) {
		for i := 0; i < 10; i++ {
			if conn.Write(ctx, websocket.MessageBinary, audio.PCMToBytes([]int16{int16(i)})) != nil {
				return
			}
		}
		conn.Write(ctx, websocket.MessageText, []byte("EOS"))
	})

	calls := 0
	req := session.SynthesisRequest{Text: "hi", Voice: "F1", SampleRate: 22050}
	err := tts.StreamSynthesize(context.Background(), req, func(chunk []int16) error {
		calls++
		return session.ErrInterrupted
	})
	if err != session.ErrInterrupted {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if calls != 1 {
		t.Fatalf("onChunk called %d times after error", calls)
	}
}
