package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/creasty/defaults"

	_ "embed"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	// Extension is the only file name suffix tracked in the folder.
	Extension = ".txt"
)

// Config is the symstat configuration
type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Folder  string  `json:"folder,omitempty" yaml:"folder,omitempty"`
	Service Service `json:"service" yaml:"service"`
}

// Service tunes logging, output and the event pipeline.
type Service struct {
	Verbose bool `json:"verbose" yaml:"verbose" default:"false"`

	// "stderr", "stdout", "discard" or a path
	Log string `json:"log" yaml:"log" default:"stderr"`

	// "text" or "json"
	Format string `json:"format" yaml:"format" default:"text"`

	// symbols shown per document and for the folder
	Top int `json:"top" yaml:"top" default:"5"`

	// snapshot output directory
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// event channel capacity
	Queue int `json:"queue" yaml:"queue" default:"64"`

	// parallel scans on startup
	Workers      int    `json:"workers" yaml:"workers" default:"4"`
	RenameWindow string `json:"rename_window" yaml:"rename_window" default:"100ms"`

	// stats report interval, empty disables
	Report string  `json:"report,omitempty" yaml:"report,omitempty"`
	Server *Server `json:"server,omitempty" yaml:"server,omitempty"`
}

// Server enables the read-only HTTP surface.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// RenameWindowDuration parses RenameWindow. Values are validated by the
// schema on load, so an error means the struct was built by hand.
func (s Service) RenameWindowDuration() (time.Duration, error) {
	if s.RenameWindow == "" {
		return 0, nil
	}
	return time.ParseDuration(s.RenameWindow)
}

func (s Service) ReportInterval() (time.Duration, error) {
	if s.Report == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Report)
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// struct tags are static, so this is a programmer's mistake
		panic(err)
	}
	return cfg
}

func expandEnvRecursive(pt *Config) {
	expandEnvValue(reflect.ValueOf(pt).Elem())
}

func expandEnvValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				expandEnvValue(f)
			}
		}
	case reflect.Pointer:
		if !v.IsNil() {
			expandEnvValue(v.Elem())
		}
	default:
		// other kinds ignored
	}
}

//go:embed config.cue
var cueSource []byte

var (
	cueCtx    *cue.Context
	cueConfig cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	cueConfig = compiled.LookupPath(cue.ParsePath("#Config"))
	if cueConfig.Err() != nil {
		panic(cueConfig.Err())
	}
	if err := cueConfig.Validate(); err != nil {
		panic(err)
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// NOT SAFE for multiple goroutines
// Return CueError in a case validation phase fails
func LoadConfig(r io.Reader) (Config, error) {
	var ret Config
	if err := loadConfig1(r, &ret); err != nil {
		return ret, err
	}
	return ret, nil
}

func LoadConfigFromPath(path string) (Config, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("error opening config file: %w", err)
		}
		r = f
		defer func() {
			err := f.Close()
			if err != nil {
				slog.Error("can't close config file", "path", path, "error", err)
			}
		}()
	}
	cfg, err := LoadConfig(r)
	if err != nil {
		var cuerr CueError
		if errors.As(err, &cuerr) {
			slog.Error("validation error", "path", path, "detail", cuerr.Error())
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func loadConfig1(r io.Reader, pt *Config) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	r = bytes.NewReader(b)

	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := cueConfig.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return CueError{cuerr: err}
	}

	if err := unified.Decode(pt); err != nil {
		return err
	}

	expandEnvRecursive(pt)
	return nil
}

// CueError wraps a schema validation failure
type CueError struct {
	cuerr error
}

// Error implements error interface, returns the string content of underlying
// cue error
func (e CueError) Error() string {
	return e.cuerr.Error()
}

// Unwrap allows one to get the original error via errors.As
func (e CueError) Unwrap() error {
	return e.cuerr
}
