package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	"jarvis/internal/agent"
	"jarvis/internal/audio"
	"jarvis/internal/config"
	"jarvis/internal/device"
	"jarvis/internal/info"
	"jarvis/internal/ipc"
	"jarvis/internal/journal"
	"jarvis/internal/llama"
	"jarvis/internal/mqtt"
	"jarvis/internal/music"
	"jarvis/internal/nlu"
	"jarvis/internal/notify"
	"jarvis/internal/proxy"
	"jarvis/internal/security"
	"jarvis/internal/tts"
	"jarvis/internal/vision"
	"jarvis/internal/voice"
	"jarvis/pkg/protocol"
	"jarvis/pkg/stt"
)

// covers a detection cycle finishing after disarm
const shutdownTimeout = 45 * time.Second

func main() {
	cfgPath := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (overrides config)")
	noMic := cli.Bool("no-mic", false, "Run without a microphone; commands come from jarvis-ctl only")
	cli.Parse()

	if err := run(*cfgPath, *envFile, *logLevel, *proxyAddr, *noMic); err != nil {
		log.Error("JARVIS failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath, envFile, logLevel, proxyAddr string, noMic bool) error {
	// secrets may live in .env; a missing file is fine
	_ = godotenv.Load(envFile)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if proxyAddr != "" {
		cfg.Proxy = proxyAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
	logger := log.Default()

	log.Info("Booting up")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	netClient, err := proxy.NewClient(cfg.Proxy)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	var cleanup []agent.CleanupStep
	// set once the agent owns cleanup; until then failed boots stop children here
	booted := false

	baseURL := cfg.LLM.BaseURL
	if cfg.LLM.Server.Enabled {
		srv := llama.New(llama.Config{
			Binary:         cfg.LLM.Server.Binary,
			ModelPath:      cfg.LLM.Server.ModelPath,
			Port:           cfg.LLM.Server.Port,
			Threads:        cfg.LLM.Server.Threads,
			StartupTimeout: cfg.LLM.Server.StartupTimeout,
			Logger:         logger.With("component", "llama"),
		})
		if err := srv.Start(sigCtx); err != nil {
			return fmt.Errorf("start llama-server: %w", err)
		}
		defer func() {
			if !booted {
				_ = srv.Stop(context.Background())
			}
		}()
		baseURL = srv.BaseURL()
		cleanup = append(cleanup, agent.CleanupStep{Name: "llama-server", Run: srv.Stop})
	}
	log.Debug("Loaded language model", "url", baseURL)

	completer := nlu.NewClient(nlu.Config{
		BaseURL:     baseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	whisper, err := stt.NewTranscriber(cfg.Audio.ModelPath)
	if err != nil {
		return fmt.Errorf("init whisper: %w", err)
	}
	defer whisper.Close()
	log.Debug("Loaded whisper")

	voiceCfg := voice.Config{
		Transcriber: whisper,
		Chime:       notify.NewChime(cfg.Audio.ChimeFile),
		TempFile:    cfg.Audio.TempFile,
		Language:    cfg.Audio.Language,
		Logger:      logger.With("component", "voice"),
	}
	if cfg.Audio.Duck {
		voiceCfg.Ducker = audio.NewDucker([]string{"jarvis", "espeak"}, 10)
	}
	if !noMic {
		rec := audio.NewRecorder(cfg.Audio.MaxRecord)
		if err := rec.Init(); err != nil {
			return fmt.Errorf("init audio: %w", err)
		}
		defer rec.Close()
		voiceCfg.Recorder = rec
		log.Debug("Loaded recorder")
	}
	listener := voice.NewListener(voiceCfg)
	cleanup = append(cleanup, agent.CleanupStep{
		Name: "temp audio",
		Run:  func(context.Context) error { return listener.Cleanup() },
	})

	speaker, err := tts.NewVoice(cfg.TTS.Voice, tts.DefaultRate)
	if err != nil {
		return fmt.Errorf("init espeak: %w", err)
	}
	defer speaker.Close()

	infraCtx, stopInfra := context.WithCancel(context.Background())
	defer stopInfra()
	g, gctx := errgroup.WithContext(infraCtx)

	light, err := newLight(cfg.Light, g, gctx)
	if err != nil {
		return err
	}

	sensors := mqtt.New(mqtt.Config{
		Broker:       cfg.MQTT.Broker,
		ClientID:     cfg.MQTT.ClientID,
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		MotionTopic:  cfg.MQTT.MotionTopic,
		ClimateTopic: cfg.MQTT.ClimateTopic,
		MaxAge:       cfg.MQTT.MaxAge,
		MotionMaxAge: cfg.MQTT.MotionMaxAge,
	}, logger.With("component", "mqtt"))
	g.Go(func() error { return sensors.Run(gctx) })

	var events *journal.Store
	if cfg.Journal.Path != "" {
		events, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		cleanup = append(cleanup, agent.CleanupStep{
			Name: "journal",
			Run:  func(context.Context) error { return events.Close() },
		})
	}

	hw := device.NewLock()
	camera := device.NewCamera(cfg.Camera.Command, cfg.Camera.Args)
	visionCfg := vision.Config{
		DetectorURL:   cfg.Vision.DetectorURL,
		FaceURL:       cfg.Vision.FaceURL,
		Timeout:       cfg.Vision.Timeout,
		MinConfidence: cfg.Vision.MinConfidence,
	}

	monitor := security.NewMonitor(security.Deps{
		Motion:   sensors,
		Camera:   camera,
		Detector: vision.NewDetector(visionCfg),
		Faces:    vision.NewFaceMatcher(visionCfg),
		Notifier: newNotifier(cfg.Telegram, netClient, logger),
		Speaker:  speaker,
		Hardware: hw,
		Journal:  optionalJournal(events),
		Logger:   logger.With("component", "security"),
	}, security.Config{
		Cooldown:         cfg.Security.Cooldown,
		MaxCycleFailures: cfg.Security.MaxCycleFailures,
		CycleTimeout:     cfg.Security.CycleTimeout,
	})

	dispatcher := agent.NewDispatcher(agent.Deps{
		Speaker:  speaker,
		Light:    light,
		Camera:   camera,
		Thermo:   sensors,
		Music:    music.NewPlayer(cfg.Music.Dir, logger.With("component", "music")),
		Weather:  info.NewWeather(cfg.Weather.URL, netClient),
		News:     newNews(cfg.News, netClient),
		Hardware: hw,
		Security: monitor,
		Journal:  optionalJournal(events),
		SavePhoto: func(img image.Image, at time.Time) (string, error) {
			return device.SavePhoto(cfg.Camera.PhotoDir, img, at)
		},
		Logger: logger.With("component", "dispatcher"),
	})

	agentCfg := agent.Config{
		Files:           listener,
		Completer:       completer,
		Dispatcher:      dispatcher,
		Cleanup:         cleanup,
		CompleteTimeout: cfg.LLM.Timeout,
		Logger:          logger.With("component", "agent"),
	}
	if !noMic {
		agentCfg.Listener = listener
	}
	jarvis := agent.New(agentCfg)

	ctl := ipc.NewServer(cfg.IPC.Socket, func(_ context.Context, msg ipc.ControlMessage) error {
		switch msg.Cmd {
		case ipc.CmdSay:
			return jarvis.Inject(agent.Command{Text: msg.Text})
		case ipc.CmdAudio:
			return jarvis.Inject(agent.Command{AudioPath: msg.Path})
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return fmt.Errorf("unknown command %q", msg.Cmd)
		}
	}, logger.With("component", "ipc"))
	g.Go(func() error { return ctl.Run(gctx) })

	booted = true
	log.Info("Boot up - successful")

	// the agent stops on a signal or when any infrastructure task fails;
	// infrastructure outlives it so shutdown can still switch the light off
	agentCtx, cancelAgent := context.WithCancel(sigCtx)
	defer cancelAgent()
	context.AfterFunc(gctx, cancelAgent)

	g.Go(func() error {
		defer stopInfra()

		err := jarvis.Run(agentCtx)

		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := jarvis.Shutdown(shutdownCtx); serr != nil {
			log.Warn("Cleanup incomplete", "err", serr)
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" || !errors.Is(err, config.ErrNoConfig) {
			return nil, err
		}
		log.Warn("No config file, using defaults")
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLight(cfg config.LightConfig, g *errgroup.Group, ctx context.Context) (agent.Light, error) {
	switch cfg.Driver {
	case config.LightHub:
		ptcl, err := protocol.NewProtocol(protocol.PtclConfig{
			Shard:   cfg.HubShard,
			Url:     cfg.HubURL,
			Reconn:  2,
			Timeout: 5 * time.Second,
			EmitOut: func(msg *protocol.Message) {
				log.Debug("Unsolicited hub frame", "msg", msg.String())
			},
		})
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			ptcl.Run(ctx)
			return nil
		})
		return device.NewHubLight(ptcl, cfg.HubTarget, cfg.HubNoun), nil

	case config.LightHue:
		return device.NewHueLight(cfg.HueHost, cfg.HueUser, cfg.HueLightID), nil

	default:
		return nil, nil
	}
}

func newNotifier(cfg config.TelegramConfig, client *http.Client, logger *log.Logger) security.Notifier {
	if !cfg.Configured() {
		log.Warn("Telegram not configured, alerts go to the log")
		return notify.Log{Logger: logger}
	}

	tg, err := notify.NewTelegram(cfg.Token, cfg.ChatID, client)
	if err != nil {
		log.Warn("Telegram unavailable, alerts go to the log", "err", err)
		return notify.Log{Logger: logger}
	}
	return tg
}

func newNews(cfg config.NewsConfig, client *http.Client) agent.News {
	if cfg.APIKey == "" {
		log.Warn("NEWS_API_KEY not set, news disabled")
		return nil
	}
	return info.NewNews(cfg.URL, cfg.APIKey, cfg.Country, client)
}

// optionalJournal keeps a nil store from becoming a non-nil interface.
func optionalJournal(s *journal.Store) agent.Journal {
	if s == nil {
		return nil
	}
	return s
}
