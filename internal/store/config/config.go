package config

type Config struct {
	DBDsn string `short:"d" long:"database" env:"DATABASE_URI" description:"PostgreSQL connection string"`
}
