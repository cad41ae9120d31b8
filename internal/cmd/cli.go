// Package cmd defines the kong command grammar for uhidkbd.
package cmd

// LogConfig groups the logging flags shared by every command.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"UHIDKBD_LOG_LEVEL"`
	File    string `help:"Write logs to this file instead of stdout/stderr" env:"UHIDKBD_LOG_FILE"`
	RawFile string `help:"Write raw uhid record hexdumps to this file" env:"UHIDKBD_LOG_RAW_FILE"`
}

// CLI is the top-level command grammar.
type CLI struct {
	Config string    `help:"Path to a config file (json, yaml or toml)" env:"UHIDKBD_CONFIG"`
	Log    LogConfig `embed:"" prefix:"log."`

	Run       RunCmd        `cmd:"" default:"withargs" help:"Create the virtual keyboard device and forward terminal keystrokes"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}
