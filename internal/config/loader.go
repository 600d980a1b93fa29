package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var fileNames = []string{"ccvoice.json", "ccvoice.yaml", "ccvoice.yml"}

// Loader resolves the config file for a working directory.
type Loader struct {
	workDir string
	homeDir string
}

// NewLoader creates a loader that searches workDir/.claude, then
// ~/.claude.
func NewLoader(workDir string) *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{workDir: workDir, homeDir: homeDir}
}

// GlobalPath is where init writes the config.
func (l *Loader) GlobalPath() string {
	return filepath.Join(l.homeDir, ".claude", fileNames[0])
}

// Load returns the configuration and the path it came from. An explicit path
// must exist. Without one the project and global files are tried, and the
// built-in defaults are returned with an empty path when neither exists.
func (l *Loader) Load(explicit string) (*Config, string, error) {
	if explicit != "" {
		if err := validateConfigPath(explicit); err != nil {
			return nil, "", err
		}
		cfg, err := LoadFile(explicit)
		if err != nil {
			return nil, "", err
		}
		return cfg, explicit, nil
	}

	var dirs []string
	if l.workDir != "" {
		dirs = append(dirs, filepath.Join(l.workDir, ".claude"))
	}
	if l.homeDir != "" {
		dirs = append(dirs, filepath.Join(l.homeDir, ".claude"))
	}

	for _, dir := range dirs {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			cfg, err := LoadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, "", err
			}
			log.Debug().Str("path", path).Msg("Loaded config")
			return cfg, path, nil
		}
	}

	log.Debug().Msg("No config file found, using defaults")
	return Default(), "", nil
}

func validateConfigPath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return nil
	default:
		return fmt.Errorf("invalid config path %s: must be a .json, .yaml or .yml file", path)
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile reads one config file on top of the defaults and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	// Lists from the file replace the defaults wholesale, so decode them into
	// nil slices and restore the defaults only when the file omits them.
	defaults := Default()
	cfg := Default()
	cfg.LLM.Providers = nil
	cfg.TTS.Providers = nil
	cfg.Hooks.ClaudeCode.NotificationFilter = nil

	if isYAML(path) {
		err = yaml.Unmarshal([]byte(expanded), cfg)
	} else {
		err = json.Unmarshal([]byte(expanded), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = defaults.LLM.Providers
	}
	if cfg.TTS.Providers == nil {
		cfg.TTS.Providers = defaults.TTS.Providers
	}
	if cfg.Hooks.ClaudeCode.NotificationFilter == nil {
		cfg.Hooks.ClaudeCode.NotificationFilter = defaults.Hooks.ClaudeCode.NotificationFilter
	}

	checkFilePermissions(path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value. Unset variables
// are left as written so providers can report them as not configured.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Don't log variable names
		log.Debug().Msg("Referenced environment variable not set in config")
		return match
	})
}

func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Warn().
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Config file may contain secrets but has permissive permissions. Consider: chmod 600")
	}
}

// Save writes cfg to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
