package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the engine's process configuration. Per-call behavior lives in
// the playbook; this covers listeners, paths and credentials.
type Config struct {
	SIP      SIPConfig  `koanf:"sip"`
	HTTP     HTTPConfig `koanf:"http"`
	Playbook string     `koanf:"playbook"`
	Sounds   string     `koanf:"sounds"`
	Log      LogConfig  `koanf:"log"`
	LLM      LLMConfig  `koanf:"llm"`
}

type SIPConfig struct {
	Protocol      string `koanf:"protocol"`
	ListenAddress string `koanf:"listen_address"`
	Port          int    `koanf:"port"`
}

type HTTPConfig struct {
	ListenAddress string `koanf:"listen_address"`
}

type LogConfig struct {
	Level        string `koanf:"level"`
	PhoneNumbers bool   `koanf:"phone_numbers"` // include caller numbers in logs
}

// LLMConfig lets deployment credentials override what the playbook declares,
// so API keys stay out of playbook files.
type LLMConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (YAML, optional) and VPB_-prefixed
// environment variables, env taking precedence. Nested keys use double
// underscores: VPB_SIP__PORT=5080.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("VPB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VPB_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefault(k, "sip.protocol", "udp")
	setDefault(k, "sip.listen_address", "0.0.0.0")
	setDefault(k, "sip.port", 5060)
	setDefault(k, "http.listen_address", ":8080")
	setDefault(k, "playbook", "playbook.md")
	setDefault(k, "sounds", "./sounds")
	setDefault(k, "log.level", "info")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	return &cfg, nil
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
