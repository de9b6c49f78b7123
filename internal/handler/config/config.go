package config

type Config struct {
	ServerAddr string `short:"a" long:"addr" env:"RUN_ADDRESS" default:"localhost:8080" description:"HTTP server address"`
}
