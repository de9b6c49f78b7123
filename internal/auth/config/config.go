package config

import "time"

type Config struct {
	TokenSecret string        `long:"token-secret" env:"TOKEN_SECRET" default:"artcares" description:"JWT signing secret"`
	TokenExp    time.Duration `long:"token-exp" env:"TOKEN_EXP" default:"3h" description:"JWT lifetime"`
}
