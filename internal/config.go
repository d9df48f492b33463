package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/imagesorter/internal/sorter"
	"github.com/starford/imagesorter/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Rules   RulesConfig       `yaml:"rules"`
	Journal JournalConfig     `yaml:"journal"`
	Sorter  SorterConfig      `yaml:"sorter"`
	Fetch   FetchConfig       `yaml:"fetch"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Vault, &c.Rules, &c.Sorter, &c.Fetch, &c.Watch, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. SSEKeepalive is the interval
// of comment frames on /api/events; zero disables them.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	SSEKeepalive time.Duration `yaml:"sse_keepalive"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SSEKeepalive, validation.Min(time.Duration(0))),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RulesConfig holds the path of the domain rule file. The format follows
// the extension: .yaml, .yml, .toml or .json.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the rules configuration.
func (c *RulesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required, validation.By(ruleFileExt)),
	)
}

func ruleFileExt(value interface{}) error {
	p, _ := value.(string)
	lower := strings.ToLower(p)
	for _, ext := range []string{".yaml", ".yml", ".toml", ".json"} {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("must end in .yaml, .yml, .toml or .json")
}

// JournalConfig holds the SQLite run journal location. An empty path
// disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether runs are recorded.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// SorterConfig tunes the sorting pipeline.
type SorterConfig struct {
	SettleDelay    time.Duration `yaml:"settle_delay"`
	Extensions     []string      `yaml:"extensions"`
	DedupeInFlight bool          `yaml:"dedupe_inflight"`
}

// Validate validates the sorter configuration.
func (c *SorterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.By(dotPrefixed))),
	)
}

func dotPrefixed(value interface{}) error {
	ext, _ := value.(string)
	if !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("must start with a dot")
	}
	return nil
}

// Sorter converts the section into sorter.Config.
func (c *SorterConfig) Sorter() sorter.Config {
	return sorter.Config{
		SettleDelay:    c.SettleDelay,
		Extensions:     c.Extensions,
		DedupeInFlight: c.DedupeInFlight,
	}
}

// FetchConfig configures image downloads.
//
// Timeout bounds a whole download; 0 leaves only the transport defaults.
// MaxBytes caps a single image (0 means no cap). BlockInternal rejects
// loopback and cloud metadata hosts, which matters when notes come from
// untrusted clippers.
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxBytes      int64         `yaml:"max_bytes"`
	UserAgent     string        `yaml:"user_agent"`
	BlockInternal bool          `yaml:"block_internal"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// WatchConfig holds glob patterns of vault paths the watcher ignores.
type WatchConfig struct {
	Ignore []string `yaml:"ignore"`
}

// Validate compiles every pattern once to surface syntax errors early.
func (c *WatchConfig) Validate() error {
	if _, err := watcher.CompileIgnore(c.Ignore); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:         8080,
				SSEKeepalive: 30 * time.Second,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Rules: RulesConfig{
			Path: "./rules.yaml",
		},
		Journal: JournalConfig{
			Path: "./imagesorter.db",
		},
		Sorter: SorterConfig{
			SettleDelay:    sorter.DefaultSettleDelay,
			Extensions:     append([]string(nil), sorter.DefaultExtensions...),
			DedupeInFlight: true,
		},
		Fetch: FetchConfig{},
		Watch: WatchConfig{
			Ignore: append([]string(nil), watcher.DefaultIgnore...),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
