package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/CZERTAINLY/symstat/internal/log"
	"github.com/CZERTAINLY/symstat/internal/model"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	userConfigPath string // /default/config/path/symstat on given OS
	configPath     string // actual config file used (if loaded)

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

var rootCmd = &cobra.Command{
	Use:          "symstat",
	Short:        "Live character statistics of the text files in a folder",
	SilenceUsage: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "watch scans the folder and keeps the statistics up to date until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doWatch,
}

var scanCmd = &cobra.Command{
	Use:   "scan [folder]",
	Short: "scan prints the statistics of the folder once",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doScan,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides a version of symstat",
	RunE:  doVersion,
}

func init() {
	// user configuration
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "symstat")

	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is symstat.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages and usage
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		slog.Error("symstat failed", "err", err)
		switch {
		case errors.Is(err, model.ErrFolder):
			// usage does not help with a missing folder
		case strings.HasPrefix(err.Error(), "unknown command"):
			_ = rootCmd.Help() // ./cmd bflmp
		default:
			_ = cmd.Help() // ./cmd watch a b (extra arg)
		}
		os.Exit(1)
	}
}

func doVersion(cmd *cobra.Command, args []string) error {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return fmt.Errorf("symstat: version info not available")
	}

	out := cmd.OutOrStdout()
	if configPath != "" {
		_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
	}
	_, _ = fmt.Fprintf(out, "symstat: %s\n", info.Main.Version)
	_, _ = fmt.Fprintf(out, "go:      %s\n", info.GoVersion)
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			_, _ = fmt.Fprintf(out, "commit:  %s\n", s.Value)
		case "vcs.time":
			_, _ = fmt.Fprintf(out, "date:    %s\n", s.Value)
		case "vcs.modified":
			_, _ = fmt.Fprintf(out, "dirty:   %s\n", s.Value)
		}
	}
	_, _ = fmt.Fprintln(out)

	return nil
}

// loadConfig finds, loads and applies the configuration. The returned
// closer releases the log file.
func loadConfig(_ *cobra.Command, _ []string) (model.Config, io.Closer, error) {
	configPath = ""
	if envConfig, ok := os.LookupEnv("SYMSTATCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "symstat.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var config model.Config

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "symstat.yaml")
		if err := storeConfig(configPath, config); err != nil {
			return config, nil, err
		}
	} else {
		var err error
		config, err = model.LoadConfigFromPath(configPath)
		if err != nil {
			return config, nil, err
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, closer, err := log.Open(config.Service.Log)
	if err != nil {
		return config, nil, err
	}
	slog.SetDefault(log.NewWithWriter(w, config.Service.Verbose))

	slog.Debug("symstat", "configPath", configPath)
	slog.Debug("symstat", "config", config)
	return config, closer, nil
}

func storeConfig(path string, config model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

// resolveFolder picks the folder from the argument, the configuration or
// asks for it on in.
func resolveFolder(args []string, config model.Config, in io.Reader, out io.Writer) (string, error) {
	var folder string
	switch {
	case len(args) > 0:
		folder = args[0]
	case config.Folder != "":
		folder = config.Folder
	default:
		_, _ = fmt.Fprintln(out, "Enter the folder path:")
		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading folder path: %w", err)
			}
			return "", fmt.Errorf("%w: no folder given", model.ErrFolder)
		}
		folder = strings.TrimSpace(scanner.Text())
	}
	if folder == "" {
		return "", fmt.Errorf("%w: no folder given", model.ErrFolder)
	}
	return filepath.Abs(folder)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
