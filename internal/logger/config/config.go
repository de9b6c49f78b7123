package config

type Config struct {
	LogLevel string `short:"l" long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level"`
	// Пустое значение - только stderr
	LogFile       string `long:"log-file" env:"LOG_FILE" description:"rotated log file"`
	LogMaxSizeMB  int    `long:"log-max-size" env:"LOG_MAX_SIZE" default:"100" description:"log file size before rotation, MB"`
	LogMaxBackups int    `long:"log-max-backups" env:"LOG_MAX_BACKUPS" default:"5" description:"rotated log files to keep"`
}
