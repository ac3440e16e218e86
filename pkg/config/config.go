// Package config loads process configuration from the environment
// (FACEGATE_ prefix) and, for the assistant's voice tuning, from an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Server is the tool-server process configuration.
type Server struct {
	// DataDir is the root for all on-disk state.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// Keys and clients live under DataDir unless overridden.
	KeysDir     string `envconfig:"KEYS_DIR" default:""`
	ClientsPath string `envconfig:"CLIENTS_PATH" default:""`

	AuditDir           string `envconfig:"AUDIT_DIR" default:""`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"30"`
	AuditRedactNames   bool   `envconfig:"AUDIT_REDACT_NAMES" default:"false"`

	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"60m"`

	// DistanceThreshold is the default recognition cutoff.
	DistanceThreshold float32 `envconfig:"DISTANCE_THRESHOLD" default:"0.40"`

	// FaceSidecar launches the face model helper, e.g.
	// "facegate-face-helper --model buffalo_l".
	FaceSidecar     string   `envconfig:"FACE_SIDECAR" default:"facegate-face-helper"`
	FaceSidecarArgs []string `envconfig:"FACE_SIDECAR_ARGS" default:""`

	// HNSW tuning.
	HNSWMaxNeighbors int `envconfig:"HNSW_MAX_NEIGHBORS" default:"16"`
	HNSWBuildBeam    int `envconfig:"HNSW_BUILD_BEAM" default:"200"`
	HNSWQueryBeam    int `envconfig:"HNSW_QUERY_BEAM" default:"64"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Derived paths.
func (s *Server) ResolvePaths() {
	if s.KeysDir == "" {
		s.KeysDir = s.DataDir + "/keys"
	}
	if s.ClientsPath == "" {
		s.ClientsPath = s.DataDir + "/clients.json"
	}
	if s.AuditDir == "" {
		s.AuditDir = s.DataDir + "/audit"
	}
}

// VectorsDir is where the index snapshot and metadata store live.
func (s *Server) VectorsDir() string { return s.DataDir + "/vectors" }

// SnapshotPath is the HNSW snapshot file.
func (s *Server) SnapshotPath() string { return s.VectorsDir() + "/index.snapshot" }

// UsersDir is the badger directory for user records.
func (s *Server) UsersDir() string { return s.VectorsDir() + "/users" }

// ImagesDir retains registration images.
func (s *Server) ImagesDir() string { return s.DataDir + "/images" }

// LoadServer parses the environment.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := envconfig.Process("FACEGATE", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ResolvePaths()
	return &cfg, nil
}

// Assistant is the voice-process configuration.
type Assistant struct {
	// ServerCommand spawns the tool server for the stdio session.
	ServerCommand string   `envconfig:"SERVER_COMMAND" default:"facegate-mcp"`
	ServerArgs    []string `envconfig:"SERVER_ARGS" default:""`

	// AccessToken authenticates every tool call. Issue one with
	// "facegatectl token issue".
	AccessToken string `envconfig:"ACCESS_TOKEN" default:""`

	// VoiceConfigPath points at the YAML voice tuning file.
	VoiceConfigPath string `envconfig:"VOICE_CONFIG" default:""`

	// Audio capture.
	MicCommand      string        `envconfig:"MIC_COMMAND" default:"arecord"`
	MicSampleRate   int           `envconfig:"MIC_SAMPLE_RATE" default:"16000"`
	SilenceEnergy   float64       `envconfig:"SILENCE_ENERGY" default:"300"`
	TransitionDelay time.Duration `envconfig:"TRANSITION_DELAY" default:"500ms"`

	// Speech backends.
	STTSidecar     string   `envconfig:"STT_SIDECAR" default:"facegate-stt-helper"`
	STTSidecarArgs []string `envconfig:"STT_SIDECAR_ARGS" default:""`
	TTSCommand     string   `envconfig:"TTS_COMMAND" default:"espeak-ng"`
	TTSArgs        []string `envconfig:"TTS_ARGS" default:""`

	// Camera.
	CameraCommand string   `envconfig:"CAMERA_COMMAND" default:"fswebcam"`
	CameraArgs    []string `envconfig:"CAMERA_ARGS" default:"--no-banner,--save,-"`

	// Intent oracle.
	LLMBaseURL string        `envconfig:"LLM_BASE_URL" default:"http://localhost:11434/v1"`
	LLMAPIKey  string        `envconfig:"LLM_API_KEY" default:"local"`
	LLMModel   string        `envconfig:"LLM_MODEL" default:"gemma3n"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"5s"`
	// LLMProvider selects "openai" (any OpenAI-compatible endpoint) or
	// "genai"; empty disables the LLM and uses keywords only.
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"openai"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadAssistant parses the environment.
func LoadAssistant() (*Assistant, error) {
	var cfg Assistant
	if err := envconfig.Process("FACEGATE", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Voice is the YAML-tunable part of the assistant: phrase lists and
// keyword sets.
type Voice struct {
	WakeWords   []string `yaml:"wake_words"`
	YesKeywords []string `yaml:"yes_keywords"`
	NoKeywords  []string `yaml:"no_keywords"`
}

// DefaultVoice is used when no YAML file is configured.
func DefaultVoice() *Voice {
	return &Voice{WakeWords: []string{"hey facegate"}}
}

// LoadVoice reads the YAML voice file; an empty path yields defaults.
func LoadVoice(path string) (*Voice, error) {
	if path == "" {
		return DefaultVoice(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read voice file: %w", err)
	}
	var v Voice
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("config: parse voice file: %w", err)
	}
	if len(v.WakeWords) == 0 {
		v.WakeWords = DefaultVoice().WakeWords
	}
	return &v, nil
}
