package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatHex  = "hex"
	formatYAML = "yaml"
)

// autoReader selects the first reader reported by PC/SC.
const autoReader = "auto"

// options is the resolved atrtool configuration: defaults, then the TOML
// file, then explicit flags.
type options struct {
	Reader          string
	Format          string
	LenientChecksum bool
	LogLevel        logrus.Level

	Indicate          []string
	Remove            []string
	Historical        string
	HistoricalObjects []string
	replaceHist       bool
}

func defaultOptions() options {
	return options{
		Format:   formatText,
		LogLevel: logrus.WarnLevel,
	}
}

// atrtool config.toml key mapping.
type fileConfig struct {
	Reader          string `toml:"reader"`
	Format          string `toml:"format"`
	LenientChecksum bool   `toml:"lenient_checksum"`
	LogLevel        string `toml:"log_level"`
}

func loadConfigFile(path string, opts *options) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load atrtool config: %w", err)
	}

	if meta.IsDefined("reader") {
		opts.Reader = strings.TrimSpace(raw.Reader)
	}
	if meta.IsDefined("format") {
		opts.Format = strings.ToLower(strings.TrimSpace(raw.Format))
	}
	if meta.IsDefined("lenient_checksum") {
		opts.LenientChecksum = raw.LenientChecksum
	}
	if meta.IsDefined("log_level") {
		level, err := logrus.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return fmt.Errorf("load atrtool config: log_level: %w", err)
		}
		opts.LogLevel = level
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load atrtool config: unknown key %q", undecoded[0].String())
	}
	return nil
}

// flagValues receives the raw command line before it is merged into options.
type flagValues struct {
	config          string
	reader          string
	format          string
	lenientChecksum bool
	logLevel        string
	indicate        []string
	remove          []string
	historical      string
	histObjects     []string
}

func newFlagSet(v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("atrtool", pflag.ContinueOnError)
	fs.StringVar(&v.config, "config", "", "path to a TOML config file")
	fs.StringVarP(&v.reader, "reader", "r", "", `read the ATR from this PC/SC reader ("auto" = first reader)`)
	fs.StringVarP(&v.format, "format", "f", formatText, "output format: text, hex or yaml")
	fs.BoolVar(&v.lenientChecksum, "lenient-checksum", false, "accept an ATR whose TCK does not match")
	fs.StringVar(&v.logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	fs.StringSliceVar(&v.indicate, "indicate", nil, "offer protocol, e.g. T=1 (repeatable)")
	fs.StringSliceVar(&v.remove, "remove", nil, "withdraw protocol, e.g. T=0 (repeatable)")
	fs.StringVar(&v.historical, "historical", "", "replace the historical bytes (hex, empty string clears)")
	fs.StringArrayVar(&v.histObjects, "historical-object", nil, "build category 80 historical bytes from TAG=HEX objects, e.g. 47=C00140 (repeatable)")
	fs.BoolP("help", "h", false, "show help")
	return fs
}

// resolveOptions layers the config file and the flags that were set
// explicitly on top of the defaults.
func resolveOptions(fs *pflag.FlagSet, v flagValues) (options, error) {
	opts := defaultOptions()

	if v.config != "" {
		if err := loadConfigFile(v.config, &opts); err != nil {
			return options{}, err
		}
	}

	if fs.Changed("reader") {
		opts.Reader = strings.TrimSpace(v.reader)
	}
	if fs.Changed("format") {
		opts.Format = strings.ToLower(strings.TrimSpace(v.format))
	}
	if fs.Changed("lenient-checksum") {
		opts.LenientChecksum = v.lenientChecksum
	}
	if fs.Changed("log-level") {
		level, err := logrus.ParseLevel(v.logLevel)
		if err != nil {
			return options{}, fmt.Errorf("--log-level: %w", err)
		}
		opts.LogLevel = level
	}

	opts.Indicate = v.indicate
	opts.Remove = v.remove
	if fs.Changed("historical") {
		opts.Historical = v.historical
		opts.replaceHist = true
	}
	if len(v.histObjects) > 0 {
		if opts.replaceHist {
			return options{}, fmt.Errorf("give either --historical or --historical-object, not both")
		}
		opts.HistoricalObjects = v.histObjects
	}

	switch opts.Format {
	case formatText, formatHex, formatYAML:
	default:
		return options{}, fmt.Errorf("unknown output format %q (want text, hex or yaml)", opts.Format)
	}

	return opts, nil
}
