package config

type Config struct {
	// Без брокеров уведомления пишутся в лог
	KafkaBrokers []string `long:"kafka-brokers" env:"KAFKA_BROKERS" env-delim:"," description:"Kafka brokers for purchase notifications"`
	Topic        string   `long:"notify-topic" env:"NOTIFY_TOPIC" default:"purchase.notifications" description:"Kafka topic for purchase notifications"`
}
