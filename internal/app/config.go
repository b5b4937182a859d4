package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	"fscore/internal/protocol/dhsession"
)

const (
	defaultLogLevel  = "INFO"
	defaultLogFormat = "text"
	defaultBackend   = BackendSQLite
	defaultHomeDir   = ".fscore"

	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Logging configures logrus.
type Logging struct {
	// Level is one of ERROR, WARNING, INFO, DEBUG.
	Level string
	// Format is "text" or "json".
	Format string
	// File specifies the log file, if omitted stderr is used.
	File string
}

func (l *Logging) validate() error {
	lvl := strings.ToUpper(l.Level)
	switch lvl {
	case "ERROR", "WARNING", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	l.Level = lvl
	switch l.Format {
	case "text", "json":
	case "":
		l.Format = defaultLogFormat
	default:
		return fmt.Errorf("config: Logging: Format '%v' is invalid", l.Format)
	}
	return nil
}

// Store selects where sessions live.
type Store struct {
	// Backend is "sqlite" or "bolt".
	Backend string
	// Path of the session database, relative paths are resolved against Home.
	Path string
}

func (s *Store) validate(home string) error {
	switch s.Backend {
	case BackendSQLite, BackendBolt:
	case "":
		s.Backend = defaultBackend
	default:
		return fmt.Errorf("config: Store: Backend '%v' is invalid", s.Backend)
	}
	if s.Path == "" {
		s.Path = "sessions." + s.Backend
	}
	if !filepath.IsAbs(s.Path) {
		s.Path = filepath.Join(home, s.Path)
	}
	return nil
}

// ForwardSecrecy configures the engine.
type ForwardSecrecy struct {
	// Disabled turns forward secrecy off: nothing is encapsulated and peers'
	// sessions are refused.
	Disabled bool
	// MinVersion and MaxVersion bound the advertised range, e.g. "1.0".
	MinVersion string
	MaxVersion string

	versions domain.VersionRange
}

func (f *ForwardSecrecy) validate() error {
	r := dhsession.SupportedVersions
	var err error
	if f.MinVersion != "" {
		if r.Min, err = parseVersion(f.MinVersion); err != nil {
			return fmt.Errorf("config: ForwardSecrecy: MinVersion: %w", err)
		}
	}
	if f.MaxVersion != "" {
		if r.Max, err = parseVersion(f.MaxVersion); err != nil {
			return fmt.Errorf("config: ForwardSecrecy: MaxVersion: %w", err)
		}
	}
	if !r.Valid() || !dhsession.SupportedVersions.Contains(r.Min) || !dhsession.SupportedVersions.Contains(r.Max) {
		return fmt.Errorf("config: ForwardSecrecy: range %s is not within %s", r, dhsession.SupportedVersions)
	}
	f.versions = r
	return nil
}

// Versions is the validated version range.
func (f *ForwardSecrecy) Versions() domain.VersionRange { return f.versions }

func parseVersion(s string) (domain.Version, error) {
	var major, minor uint32
	if _, err := fmt.Sscanf(s, "%d.%d", &major, &minor); err != nil {
		return 0, fmt.Errorf("version %q: %w", s, err)
	}
	if major > 0xff || minor > 0xff {
		return 0, fmt.Errorf("version %q out of range", s)
	}
	v := domain.Version(major<<8 | minor)
	if !v.Known() {
		return 0, fmt.Errorf("unknown version %s", v)
	}
	return v, nil
}

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string // config directory, e.g. $HOME/.fscore
	RelayURL string // relay base URL, e.g. http://127.0.0.1:8080

	Logging        *Logging
	Store          *Store
	ForwardSecrecy *ForwardSecrecy

	HTTP *http.Client `toml:"-"` // optional; defaults to http.DefaultClient
}

// FixupAndValidate applies defaults and checks every section.
func (c *Config) FixupAndValidate() error {
	if c.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.Home = filepath.Join(dir, defaultHomeDir)
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.ForwardSecrecy == nil {
		c.ForwardSecrecy = &ForwardSecrecy{}
	}
	return errors.Join(c.Logging.validate(), c.Store.validate(c.Home), c.ForwardSecrecy.validate())
}

// InitLogging configures the global logrus logger. The returned closer
// releases the log file, if any.
func (c *Config) InitLogging() (io.Closer, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)
	if c.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if c.Logging.File == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Load parses the provided buffer b as a config file body and returns the
// Config. Unknown keys are an error.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	return cfg, nil
}

// LoadFile loads and parses the provided file and returns the Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
