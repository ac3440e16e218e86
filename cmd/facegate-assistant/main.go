// Command facegate-assistant is the voice front end: wake word, spoken
// flows, camera capture, and speech replies, driving the facegate MCP
// server over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skyylabs/facegate/pkg/assistant"
	"github.com/skyylabs/facegate/pkg/audio"
	"github.com/skyylabs/facegate/pkg/camera"
	"github.com/skyylabs/facegate/pkg/config"
	"github.com/skyylabs/facegate/pkg/intent"
	"github.com/skyylabs/facegate/pkg/speech"
	"github.com/skyylabs/facegate/pkg/toolclient"
)

func main() {
	root := &cobra.Command{
		Use:          "facegate-assistant",
		Short:        "Voice-driven face recognition assistant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadAssistant()
	if err != nil {
		return err
	}
	if cfg.AccessToken == "" {
		return fmt.Errorf("FACEGATE_ACCESS_TOKEN is required; issue one with 'facegatectl token issue'")
	}
	voiceCfg, err := config.LoadVoice(cfg.VoiceConfigPath)
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		log = log.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One persistent stdio session to the tool server for the whole run.
	tools, err := toolclient.Connect(ctx, toolclient.Options{
		ServerCommand: cfg.ServerCommand,
		ServerArgs:    cfg.ServerArgs,
		AccessToken:   cfg.AccessToken,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tools.Disconnect() }()

	if snap, err := tools.HealthStatus(); err == nil {
		log.Info().Str("overall", string(snap.Overall)).Int("queued", snap.QueuedCount).
			Msg("tool server health")
	}

	// Audio stack: recorder resampled to 16 kHz, silence gate, arbiter.
	var input audio.InputDevice = audio.NewCommandInput(cfg.MicCommand, cfg.MicSampleRate)
	input, err = audio.NewResampledInput(input, cfg.MicSampleRate)
	if err != nil {
		return err
	}
	arbiter := audio.NewArbiter(cfg.TransitionDelay)
	silence := audio.NewSilenceDetector(cfg.SilenceEnergy)

	recognizer, err := speech.StartSidecarRecognizer(cfg.STTSidecar, cfg.STTSidecarArgs...)
	if err != nil {
		return fmt.Errorf("speech recognizer: %w", err)
	}
	defer func() { _ = recognizer.Close() }()

	tts := speech.NewCommandSynthesizer(cfg.TTSCommand, cfg.TTSArgs...)
	pipeline := speech.NewPipeline(arbiter, input, silence, tts, log)

	var provider intent.Provider
	switch cfg.LLMProvider {
	case "openai":
		provider = intent.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	case "genai":
		provider, err = intent.NewGenAIProvider(ctx, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			log.Warn().Err(err).Msg("genai provider unavailable; keyword fallback only")
			provider = nil
		}
	}
	oracle := intent.New(intent.Options{
		Provider:    provider,
		Timeout:     cfg.LLMTimeout,
		YesKeywords: voiceCfg.YesKeywords,
		NoKeywords:  voiceCfg.NoKeywords,
		Logger:      log,
	})

	cam := camera.NewCommandCamera(cfg.CameraCommand, cfg.CameraArgs...)

	a, err := assistant.New(assistant.Config{
		Voice:      pipeline,
		Tools:      tools,
		Oracle:     oracle,
		Camera:     cam,
		Recognizer: recognizer,
		WakeWords:  voiceCfg.WakeWords,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	err = a.Run(ctx)
	if ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}
