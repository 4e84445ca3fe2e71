package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// testConfig shrinks windows and delays so tests run in milliseconds.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.VADWindow = 10 * time.Millisecond // 160 samples at 16kHz
	cfg.ReconnectMaxAttempts = 2
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.TimeoutInterval = 5 * time.Millisecond
	cfg.PreRoll = 20 * time.Millisecond
	return cfg
}

// loudWindow returns one detector window of speech-level PCM.
func loudWindow(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = 8000
		} else {
			pcm[i] = -8000
		}
	}
	return pcm
}

type recvOut struct {
	res RecognitionResult
	err error
}

type mockStream struct {
	mu      sync.Mutex
	sent    [][]int16
	eouSent int
	sendErr error
	results chan recvOut
	closed  bool
}

func newMockStream() *mockStream {
	return &mockStream{results: make(chan recvOut, 16)}
}

func (m *mockStream) Send(ctx context.Context, pcm []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	m.sent = append(m.sent, cp)
	return nil
}

func (m *mockStream) EndUtterance(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eouSent++
	return nil
}

func (m *mockStream) Recv(ctx context.Context) (RecognitionResult, error) {
	select {
	case out := <-m.results:
		return out.res, out.err
	case <-ctx.Done():
		return RecognitionResult{}, ctx.Err()
	}
}

func (m *mockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStream) push(res RecognitionResult) { m.results <- recvOut{res: res} }
func (m *mockStream) fail(err error)             { m.results <- recvOut{err: err} }

func (m *mockStream) sentFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockRecognizer struct {
	mu      sync.Mutex
	streams []*mockStream
	opens   int
	openErr error
}

func (m *mockRecognizer) Open(ctx context.Context) (RecognizerStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := newMockStream()
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *mockRecognizer) Name() string { return "mock-stt" }

func (m *mockRecognizer) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *mockRecognizer) stream(i int) *mockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.streams) {
		return nil
	}
	return m.streams[i]
}

type mockSynthesizer struct {
	mu      sync.Mutex
	chunks  [][]int16
	aborted int
	block   chan struct{} // when set, StreamSynthesize blocks here until Abort

	afterChunk func(i int)
}

func (m *mockSynthesizer) StreamSynthesize(ctx context.Context, req SynthesisRequest, onChunk func(pcm []int16) error) error {
	for i, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
		if m.afterChunk != nil {
			m.afterChunk(i)
		}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *mockSynthesizer) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted++
	if m.block != nil {
		select {
		case <-m.block:
		default:
			close(m.block)
		}
	}
	return nil
}

func (m *mockSynthesizer) Name() string { return "mock-tts" }

func (m *mockSynthesizer) abortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

type mockSink struct {
	mu      sync.Mutex
	frames  [][]byte
	drained int
	pushErr error
}

func (m *mockSink) Push(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.frames = append(m.frames, cp)
	return nil
}

func (m *mockSink) Drain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.frames)
	m.frames = nil
	m.drained += n
	return n
}

func (m *mockSink) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

type mockResponder struct {
	mu       sync.Mutex
	reply    string
	err      error
	received [][]Message
}

func (m *mockResponder) Respond(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, messages)
	return m.reply, m.err
}

func (m *mockResponder) Name() string { return "mock-llm" }

var errBackendDown = errors.New("backend down")
