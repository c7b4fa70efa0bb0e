package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FranksOps/nichescout/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app is the state shared by all subcommands once config is loaded.
type app struct {
	v          *viper.Viper
	configFile string
	envFile    string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "nichescout",
		Short:         "Discover and analyze the leading channels of a YouTube niche",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.StringSliceP("keyword", "k", nil, "niche keyword (repeatable); defaults to the HFY list")
	pf.String("keywords-file", "", "file with one keyword per line")
	pf.String("export", "none", "snapshot backend: none, csv, json, sqlite, postgres")
	pf.String("export-target", "", "export file path or postgres DSN")
	a.bind(pf, map[string]string{
		"log.level":      "log-level",
		"log.format":     "log-format",
		"keywords":       "keyword",
		"keywords_file":  "keywords-file",
		"export.backend": "export",
		"export.target":  "export-target",
	})

	root.AddCommand(
		newRunCmd(a),
		newKeywordsCmd(a),
		newVersionCmd(),
	)
	return root
}

// bind maps viper keys to flag names. Binding only fails for a nil flag,
// which is a programming error.
func (a *app) bind(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.v, a.configFile, a.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(stderr, opts)
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nichescout", version)
		},
	}
}

func newKeywordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Print the effective keyword list",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, kw := range a.cfg.Keywords {
				fmt.Fprintln(cmd.OutOrStdout(), kw)
			}
		},
	}
}

// openFileOrStdout returns stdout for an empty path.
func openFileOrStdout(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}
