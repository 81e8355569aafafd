// Package config loads JARVIS settings: built-in defaults, then an optional
// YAML file, then secrets from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrNoConfig = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/jarvis/config.yaml, /etc/jarvis/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jarvis", "config.yaml"))
	}

	paths = append(paths, "/etc/jarvis/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of DefaultSearchPaths wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Audio    AudioConfig    `yaml:"audio"`
	TTS      TTSConfig      `yaml:"tts"`
	Security SecurityConfig `yaml:"security"`
	Camera   CameraConfig   `yaml:"camera"`
	Vision   VisionConfig   `yaml:"vision"`
	Light    LightConfig    `yaml:"light"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Telegram TelegramConfig `yaml:"telegram"`
	Music    MusicConfig    `yaml:"music"`
	News     NewsConfig     `yaml:"news"`
	Weather  WeatherConfig  `yaml:"weather"`
	Journal  JournalConfig  `yaml:"journal"`
	IPC      IPCConfig      `yaml:"ipc"`
	// Proxy is a SOCKS5 address for outbound internet traffic. Empty
	// means direct.
	Proxy    string `yaml:"proxy"`
	LogLevel string `yaml:"log_level"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Server      ServerConfig  `yaml:"server"`
}

// ServerConfig describes the llama-server child process. When Enabled is
// false JARVIS expects an already running endpoint at LLM.BaseURL.
type ServerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Binary         string        `yaml:"binary"`
	ModelPath      string        `yaml:"model_path"`
	Port           int           `yaml:"port"`
	Threads        int           `yaml:"threads"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

type AudioConfig struct {
	TempFile  string        `yaml:"temp_file"`
	Language  string        `yaml:"language"`
	ModelPath string        `yaml:"model_path"`
	ChimeFile string        `yaml:"chime_file"`
	Duck      bool          `yaml:"duck"`
	MaxRecord time.Duration `yaml:"max_record"`
}

type TTSConfig struct {
	Voice string `yaml:"voice"`
}

type SecurityConfig struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxCycleFailures int           `yaml:"max_cycle_failures"`
	CycleTimeout     time.Duration `yaml:"cycle_timeout"`
}

type CameraConfig struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	PhotoDir string   `yaml:"photo_dir"`
}

type VisionConfig struct {
	DetectorURL   string        `yaml:"detector_url"`
	FaceURL       string        `yaml:"face_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
}

const (
	LightHub  = "hub"
	LightHue  = "hue"
	LightNone = "none"
)

type LightConfig struct {
	Driver     string `yaml:"driver"`
	HubURL     string `yaml:"hub_url"`
	HubShard   string `yaml:"hub_shard"`
	HubTarget  string `yaml:"hub_target"`
	HubNoun    string `yaml:"hub_noun"`
	HueHost    string `yaml:"hue_host"`
	HueUser    string `yaml:"hue_user"`
	HueLightID int    `yaml:"hue_light_id"`
}

type MQTTConfig struct {
	Broker       string        `yaml:"broker"`
	ClientID     string        `yaml:"client_id"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	MotionTopic  string        `yaml:"motion_topic"`
	ClimateTopic string        `yaml:"climate_topic"`
	MaxAge       time.Duration `yaml:"max_age"`
	MotionMaxAge time.Duration `yaml:"motion_max_age"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Configured reports whether alerts can go to Telegram.
func (t TelegramConfig) Configured() bool {
	return t.Token != "" && t.ChatID != 0
}

type MusicConfig struct {
	Dir string `yaml:"dir"`
}

type NewsConfig struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Country string `yaml:"country"`
}

type WeatherConfig struct {
	URL string `yaml:"url"`
}

type JournalConfig struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string `yaml:"path"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		LLM: LLMConfig{
			BaseURL:     "http://127.0.0.1:8080/v1",
			Model:       "tinyllama",
			Timeout:     60 * time.Second,
			MaxTokens:   128,
			Temperature: 0.3,
			Server: ServerConfig{
				Enabled:        true,
				Binary:         "llama-server",
				ModelPath:      "models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
				Port:           8080,
				Threads:        4,
				StartupTimeout: 90 * time.Second,
			},
		},
		Audio: AudioConfig{
			TempFile:  "temp.wav",
			Language:  "en",
			ModelPath: "third_party/whisper.cpp/models/ggml-base.bin",
			ChimeFile: "beep.mp3",
			Duck:      true,
			MaxRecord: 10 * time.Second,
		},
		TTS: TTSConfig{Voice: "en"},
		Security: SecurityConfig{
			Cooldown:         10 * time.Second,
			MaxCycleFailures: 1,
			CycleTimeout:     30 * time.Second,
		},
		Camera: CameraConfig{
			Command:  "rpicam-still",
			PhotoDir: ".",
		},
		Vision: VisionConfig{
			DetectorURL:   "http://127.0.0.1:8500",
			FaceURL:       "http://127.0.0.1:8501",
			Timeout:       10 * time.Second,
			MinConfidence: 0.4,
		},
		Light: LightConfig{
			Driver:    LightHub,
			HubURL:    "ws://localhost:8092",
			HubShard:  "JARVIS",
			HubTarget: "VERTEX",
			HubNoun:   "LAMP",
		},
		MQTT: MQTTConfig{
			Broker:       "mqtt://127.0.0.1:1883",
			ClientID:     "jarvis",
			MotionTopic:  "jarvis/sensors/motion",
			ClimateTopic: "jarvis/sensors/climate",
			MaxAge:       2 * time.Minute,
			MotionMaxAge: 30 * time.Second,
		},
		Music:    MusicConfig{Dir: filepath.Join(home, "Music")},
		News:     NewsConfig{URL: "https://newsapi.org", Country: "us"},
		Weather:  WeatherConfig{URL: "https://wttr.in/?format=1"},
		Journal:  JournalConfig{Path: "jarvis.db"},
		IPC:      IPCConfig{Socket: "/tmp/jarvis.sock"},
		LogLevel: "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays secrets from the environment. Unset variables leave the
// file values alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.LLM.APIKey, "OPENAI_API_KEY")
	set(&c.Telegram.Token, "TELEGRAM_TOKEN")
	set(&c.News.APIKey, "NEWS_API_KEY")
	set(&c.Light.HueUser, "HUE_USER")
	set(&c.MQTT.Password, "MQTT_PASSWORD")

	if v := strings.TrimSpace(getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.Server.Enabled && c.LLM.Server.ModelPath == "" {
		errs = append(errs, errors.New("llm.server.model_path is required when the server is enabled"))
	}
	if !c.LLM.Server.Enabled && c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required when the server is disabled"))
	}
	if c.Audio.ModelPath == "" {
		errs = append(errs, errors.New("audio.model_path is required"))
	}
	if c.Security.Cooldown <= 0 {
		errs = append(errs, errors.New("security.cooldown must be positive"))
	}
	if c.Security.MaxCycleFailures < 1 {
		errs = append(errs, errors.New("security.max_cycle_failures must be at least 1"))
	}
	if c.Music.Dir == "" {
		errs = append(errs, errors.New("music.dir is required"))
	}
	if c.IPC.Socket == "" {
		errs = append(errs, errors.New("ipc.socket is required"))
	}

	switch c.Light.Driver {
	case LightHub:
		if c.Light.HubURL == "" {
			errs = append(errs, errors.New("light.hub_url is required for the hub driver"))
		}
	case LightHue:
		if c.Light.HueHost == "" || c.Light.HueUser == "" {
			errs = append(errs, errors.New("light.hue_host and light.hue_user are required for the hue driver"))
		}
	case LightNone:
	default:
		errs = append(errs, fmt.Errorf("unknown light.driver %q (valid: hub, hue, none)", c.Light.Driver))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
