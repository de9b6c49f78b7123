package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/notify/config"
)

const (
	connectAttempts = 10
	connectDelay    = 5 * time.Second
)

// KafkaSender публикует уведомления в топик, ключ сообщения - получатель
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
	zaplog   *zap.Logger
}

// NewKafkaProducer ждёт доступности брокеров
func NewKafkaProducer(cfg config.Config, zaplog *zap.Logger) (sarama.SyncProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	var producer sarama.SyncProducer
	var err error
	for i := 1; i <= connectAttempts; i++ {
		producer, err = sarama.NewSyncProducer(cfg.KafkaBrokers, saramaCfg)
		if err == nil {
			return producer, nil
		}
		zaplog.Warn("waiting for Kafka",
			zap.Int("attempt", i),
			zap.Error(err))
		time.Sleep(connectDelay)
	}
	return nil, err
}

func NewKafkaSender(producer sarama.SyncProducer, topic string, zaplog *zap.Logger) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, zaplog: zaplog}
}

func (s *KafkaSender) Send(_ context.Context, notice Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(notice.Recipient),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return err
	}

	s.zaplog.Debug("notice published",
		zap.String("template", notice.Template),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *KafkaSender) Close() error {
	return s.producer.Close()
}

// LogSender пишет уведомления в лог. Используется, когда брокеры не заданы
type LogSender struct {
	zaplog *zap.Logger
}

func NewLogSender(zaplog *zap.Logger) *LogSender {
	return &LogSender{zaplog: zaplog}
}

func (s *LogSender) Send(_ context.Context, notice Notice) error {
	s.zaplog.Info("notice",
		zap.String("template", notice.Template),
		zap.String("recipient", notice.Recipient),
		zap.Int64("artwork", notice.ArtworkID),
		zap.String("charge", notice.ChargeID))
	return nil
}
