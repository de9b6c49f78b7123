package main

import (
	"errors"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/auth"
	"github.com/iurnickita/artcares/internal/config"
	"github.com/iurnickita/artcares/internal/handler"
	"github.com/iurnickita/artcares/internal/logger"
	"github.com/iurnickita/artcares/internal/notify"
	"github.com/iurnickita/artcares/internal/service"
	"github.com/iurnickita/artcares/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	// уведомления: Kafka, если заданы брокеры, иначе лог
	var sender notify.Sender = notify.NewLogSender(zaplog)
	if len(cfg.Notify.KafkaBrokers) > 0 {
		producer, err := notify.NewKafkaProducer(cfg.Notify, zaplog)
		if err != nil {
			return err
		}
		kafkaSender := notify.NewKafkaSender(producer, cfg.Notify.Topic, zaplog)
		defer kafkaSender.Close()
		sender = kafkaSender
	} else {
		zaplog.Info("no Kafka brokers configured, notifications go to the log")
	}

	service := service.NewService(cfg.Service, store, notify.NewDispatcher(sender), zaplog)
	auth, ability := auth.NewAuth(cfg.Auth, store), auth.NewAbility()

	zaplog.Info("artcares configured",
		zap.String("payment", cfg.Service.PaymentAddr),
		zap.String("currency", cfg.Service.Currency))

	return handler.Serve(cfg.Handler, auth, ability, service, zaplog)
}
