// Package config loads the imagesync configuration document. YAML and HCL
// are both supported; the parser is picked by file extension through a
// registered-parser list.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config is the complete configuration consumed by the engine. Paths may
// embed the {night} placeholder, resolved once per cycle.
type Config struct {
	WatchPath      string `json:"watch_path" yaml:"watch_path" hcl:"watch_path,attr"`
	RemoteHost     string `json:"remote_host,omitempty" yaml:"remote_host,omitempty" hcl:"remote_host,optional"`
	RemoteUser     string `json:"remote_user,omitempty" yaml:"remote_user,omitempty" hcl:"remote_user,optional"`
	RemoteBasePath string `json:"remote_base_path" yaml:"remote_base_path" hcl:"remote_base_path,attr"`

	// CameraName, when set, is inserted into the remote path after a
	// leading 8-digit night directory (or prefixed when there is none), so
	// multiple cameras can feed one archive tree.
	CameraName string `json:"camera_name,omitempty" yaml:"camera_name,omitempty" hcl:"camera_name,optional"`

	FilePatterns    []string `json:"file_patterns,omitempty" yaml:"file_patterns,omitempty" hcl:"file_patterns,optional"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty" hcl:"exclude_patterns,optional"`

	MinFileAgeSeconds   int `json:"min_file_age_seconds,omitempty" yaml:"min_file_age_seconds,omitempty" hcl:"min_file_age_seconds,optional"`
	ScanIntervalSeconds int `json:"scan_interval_seconds,omitempty" yaml:"scan_interval_seconds,omitempty" hcl:"scan_interval_seconds,optional"`
	RetryAttempts       int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty" hcl:"retry_attempts,optional"`

	// RetryDelaySeconds is a pointer so an explicit 0 (no pause between
	// attempts) survives; only an absent or negative value gets the default.
	RetryDelaySeconds      *int `json:"retry_delay_seconds,omitempty" yaml:"retry_delay_seconds,omitempty" hcl:"retry_delay_seconds,optional"`
	TransferTimeoutSeconds int  `json:"transfer_timeout_seconds,omitempty" yaml:"transfer_timeout_seconds,omitempty" hcl:"transfer_timeout_seconds,optional"`

	// TransferMethod is auto, rsync, scp or local.
	TransferMethod string `json:"transfer_method,omitempty" yaml:"transfer_method,omitempty" hcl:"transfer_method,optional"`
	Compression    bool   `json:"compression,omitempty" yaml:"compression,omitempty" hcl:"compression,optional"`

	// VerifyTransfer re-checks the destination file size after every
	// successful copy. On unless explicitly disabled.
	VerifyTransfer *bool `json:"verify_transfer,omitempty" yaml:"verify_transfer,omitempty" hcl:"verify_transfer,optional"`

	// NightBoundaryHour is the local hour at which the {night} token rolls
	// over. Noon by default: frames written before noon belong to the
	// previous night.
	NightBoundaryHour *int `json:"night_boundary_hour,omitempty" yaml:"night_boundary_hour,omitempty" hcl:"night_boundary_hour,optional"`

	StateFile      string `json:"state_file,omitempty" yaml:"state_file,omitempty" hcl:"state_file,optional"`
	PruneAfterDays int    `json:"prune_after_days,omitempty" yaml:"prune_after_days,omitempty" hcl:"prune_after_days,optional"`
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// 🔍 Validate checks required fields and applies defaults.
func (cfg *Config) Validate() error {
	if cfg.WatchPath == "" {
		return errors.Errorf("watch_path is required")
	}
	if cfg.RemoteBasePath == "" {
		return errors.Errorf("remote_base_path is required")
	}

	switch cfg.TransferMethod {
	case "", "auto":
		cfg.TransferMethod = "auto"
	case "rsync", "scp", "local":
	default:
		return errors.Errorf("invalid transfer_method %q (want auto, rsync, scp or local)", cfg.TransferMethod)
	}

	var err error
	cfg.WatchPath, err = expandHome(cfg.WatchPath)
	if err != nil {
		return errors.Errorf("expanding watch_path: %w", err)
	}
	if cfg.IsLocalDestination() {
		cfg.RemoteBasePath, err = expandHome(cfg.RemoteBasePath)
		if err != nil {
			return errors.Errorf("expanding remote_base_path: %w", err)
		}
	}
	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFile()
	} else if cfg.StateFile, err = expandHome(cfg.StateFile); err != nil {
		return errors.Errorf("expanding state_file: %w", err)
	}

	if len(cfg.FilePatterns) == 0 {
		cfg.FilePatterns = []string{"*.fits"}
	}
	if cfg.MinFileAgeSeconds <= 0 {
		cfg.MinFileAgeSeconds = 5
	}
	if cfg.ScanIntervalSeconds <= 0 {
		cfg.ScanIntervalSeconds = 30
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelaySeconds == nil || *cfg.RetryDelaySeconds < 0 {
		five := 5
		cfg.RetryDelaySeconds = &five
	}
	if cfg.TransferTimeoutSeconds <= 0 {
		cfg.TransferTimeoutSeconds = 300
	}
	if cfg.NightBoundaryHour == nil || *cfg.NightBoundaryHour < 0 || *cfg.NightBoundaryHour > 23 {
		noon := 12
		cfg.NightBoundaryHour = &noon
	}
	if cfg.PruneAfterDays <= 0 {
		cfg.PruneAfterDays = 7
	}
	if cfg.VerifyTransfer == nil {
		on := true
		cfg.VerifyTransfer = &on
	}

	return nil
}

// IsLocalDestination reports whether transfers stay on this machine.
func (cfg *Config) IsLocalDestination() bool {
	switch cfg.RemoteHost {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return cfg.TransferMethod == "local"
}

// MinFileAge returns the stability threshold as a duration.
func (cfg *Config) MinFileAge() time.Duration {
	return time.Duration(cfg.MinFileAgeSeconds) * time.Second
}

// ScanInterval returns the sleep between continuous-mode cycles.
func (cfg *Config) ScanInterval() time.Duration {
	return time.Duration(cfg.ScanIntervalSeconds) * time.Second
}

// RetryDelay returns the fixed pause between transfer attempts of one file.
func (cfg *Config) RetryDelay() time.Duration {
	if cfg.RetryDelaySeconds == nil {
		return 5 * time.Second
	}
	return time.Duration(*cfg.RetryDelaySeconds) * time.Second
}

// ShouldVerify reports whether post-transfer size verification is enabled.
func (cfg *Config) ShouldVerify() bool {
	return cfg.VerifyTransfer == nil || *cfg.VerifyTransfer
}

// TransferTimeout returns the wall-clock ceiling for one subprocess call.
func (cfg *Config) TransferTimeout() time.Duration {
	return time.Duration(cfg.TransferTimeoutSeconds) * time.Second
}

// 📝 String returns a short description of the configured flow.
func (cfg *Config) String() string {
	dest := cfg.RemoteBasePath
	if !cfg.IsLocalDestination() {
		dest = fmt.Sprintf("%s@%s:%s", cfg.RemoteUser, cfg.RemoteHost, cfg.RemoteBasePath)
	}
	return fmt.Sprintf("%s -> %s", cfg.WatchPath, dest)
}

// DefaultStateFile returns the state file location used when the config
// does not name one.
func DefaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".imagesync", "state.json")
	}
	return filepath.Join(home, ".config", "imagesync", "state.json")
}

// expandHome resolves a leading ~ against the current user's home.
func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
	}
	return path, nil
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

func init() {
	Register(&YAMLParser{})
}

func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func (p *YAMLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

func init() {
	Register(&HCLParser{})
}

func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var cfg Config
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &cfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}
	return &cfg, nil
}
