// Command agent runs one interactive voice session against the local
// microphone and speakers, standing in for the telephony media transport.
// Captured audio is companded to μ-law at the telephony rate before entering
// the engine, so the full codec path is exercised end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/voxwire-ai/voxwire-session/pkg/audio"
	"github.com/voxwire-ai/voxwire-session/pkg/config"
	"github.com/voxwire-ai/voxwire-session/pkg/observe"
	"github.com/voxwire-ai/voxwire-session/pkg/providers/llm"
	"github.com/voxwire-ai/voxwire-session/pkg/providers/stt"
	"github.com/voxwire-ai/voxwire-session/pkg/providers/tts"
	"github.com/voxwire-ai/voxwire-session/pkg/session"
	"github.com/voxwire-ai/voxwire-session/pkg/telephony"
)

// slogAdapter bridges the engine's logger interface onto log/slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...interface{}) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...interface{})  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...interface{})  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...interface{}) { a.l.Error(msg, args...) }

func logLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	configPath := flag.String("config", "agent.yaml", "path to the agent configuration file")
	recordPath := flag.String("record", "", "write captured caller audio to this WAV file on exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	engineCfg := cfg.Engine()

	sttKey := firstNonEmpty(cfg.Providers.STT.APIKey, os.Getenv("VOXWIRE_STT_API_KEY"))
	ttsKey := firstNonEmpty(cfg.Providers.TTS.APIKey, os.Getenv("VOXWIRE_TTS_API_KEY"))

	recognizer := stt.NewStreamingSTT(sttKey, engineCfg.RecognitionRate)
	if cfg.Providers.STT.Host != "" {
		recognizer.SetEndpoint(cfg.Providers.STT.Scheme, cfg.Providers.STT.Host)
	}
	synthesizer := tts.NewStreamingTTS(ttsKey)
	if cfg.Providers.TTS.Host != "" {
		synthesizer.SetEndpoint(cfg.Providers.TTS.Scheme, cfg.Providers.TTS.Host)
	}

	var responder session.Responder
	switch cfg.Providers.LLM.Name {
	case "anthropic":
		key := firstNonEmpty(cfg.Providers.LLM.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			log.Fatal("Error: anthropic api key must be set for the anthropic llm")
		}
		responder = llm.NewAnthropicLLM(key, cfg.Providers.LLM.Model)
	case "openai":
		fallthrough
	default:
		key := firstNonEmpty(cfg.Providers.LLM.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			log.Fatal("Error: openai api key must be set for the openai llm")
		}
		responder = llm.NewOpenAILLM(key, cfg.Providers.LLM.Model)
	}

	var metrics *observe.Metrics
	if cfg.Server.MetricsAddr != "" {
		mp, handler, err := observe.InitProvider()
		if err != nil {
			log.Fatal(err)
		}
		defer mp.Shutdown(context.Background())
		metrics, err = observe.NewMetrics(mp)
		if err != nil {
			log.Fatal(err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	queue := telephony.NewFrameQueue(256)
	defer queue.Close()

	sess := session.New(engineCfg, session.Deps{
		Recognizer:  recognizer,
		Synthesizer: synthesizer,
		Responder:   responder,
		Sink:        queue,
		Logger:      &slogAdapter{l: logger},
		Metrics:     metrics,
		OnTerminal: func(err error) {
			logger.Error("session ended on backend failure", "error", err)
		},
	})
	if cfg.Session.SystemPrompt != "" {
		sess.History().Add("system", cfg.Session.SystemPrompt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer sess.Stop()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	// Playback pulls companded frames from the queue at wire pace; underruns
	// fill with silence.
	var playbackMu sync.Mutex
	var playbackBytes []byte

	var recordMu sync.Mutex
	var recorded []int16

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			pcm := audio.BytesToPCM(pInput)
			if *recordPath != "" {
				recordMu.Lock()
				recorded = append(recorded, pcm...)
				recordMu.Unlock()
			}
			if err := sess.PushFrame(audio.EncodeMuLaw(pcm)); err != nil {
				return
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			for len(playbackBytes) < len(pOutput) {
				frame, ok := queue.TryPull()
				if !ok {
					break
				}
				playbackBytes = append(playbackBytes, audio.PCMToBytes(audio.DecodeMuLaw(frame))...)
			}
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			playbackMu.Unlock()

			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(engineCfg.TelephonyRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Voice agent started (session %s). Press Ctrl+C to exit.\n", sess.ID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")

	if *recordPath != "" {
		recordMu.Lock()
		wav := audio.WAVBuffer(recorded, engineCfg.TelephonyRate)
		recordMu.Unlock()
		if err := os.WriteFile(*recordPath, wav, 0o644); err != nil {
			logger.Error("failed to write recording", "path", *recordPath, "error", err)
		} else {
			logger.Info("recording written", "path", *recordPath, "samples", len(recorded))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
