package config

import "time"

// Config holds server configuration values.
type Config struct {
	ChatAddr     string `mapstructure:"chat_addr" yaml:"chat_addr"`
	FileAddr     string `mapstructure:"file_addr" yaml:"file_addr"`
	MediaAddr    string `mapstructure:"media_addr" yaml:"media_addr"`
	StorageDir   string `mapstructure:"storage_dir" yaml:"storage_dir"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	// MaxFrameSize bounds a single chat/file control frame in bytes.
	// Zero disables the limit.
	MaxFrameSize int64 `mapstructure:"max_frame_size" yaml:"max_frame_size"`

	MediaMemberTTL     time.Duration `mapstructure:"media_member_ttl" yaml:"media_member_ttl"`
	MediaSweepInterval time.Duration `mapstructure:"media_sweep_interval" yaml:"media_sweep_interval"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ChatAddr:           ":9009",
		FileAddr:           ":9010",
		MediaAddr:          ":9020",
		StorageDir:         "server_storage",
		DatabasePath:       "lanchat.db",
		LogLevel:           "info",
		MaxFrameSize:       0,
		MediaMemberTTL:     75 * time.Second,
		MediaSweepInterval: 30 * time.Second,
		ShutdownTimeout:    5 * time.Second,
	}
}
