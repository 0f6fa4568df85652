package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/raymondelooff/amqp-measurement-sampler/aggregator"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("error: config file location not specified")
	}

	c, err := aggregator.LoadConfig(os.Args[1])
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	// Set up logger
	var logger *zap.Logger
	if c.Env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	db, err := aggregator.NewDbConnection(c.MySQL, c.Retry, sugar)
	if err != nil {
		sugar.Fatalf("error: %v", err)
	}
	defer db.Close()

	// Set up aggregator
	a := aggregator.NewAggregator(c, db, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

		<-exit

		sugar.Info("sampler: shutting down")
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		sugar.Errorf("sampler: %s", err)

		return
	}

	sugar.Info("sampler: shutdown OK")
}
