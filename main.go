package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/callscribe/callscribe/config"
	"github.com/callscribe/callscribe/llm"
	"github.com/callscribe/callscribe/server"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, falling back to environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	extractor, err := llm.NewExtractor(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		logger.Fatal("creating transcript analyzer", "err", err)
	}

	srv := server.New(cfg, extractor, logger)
	if err := srv.Listen(); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
