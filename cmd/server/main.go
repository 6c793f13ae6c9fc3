package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/parleychat/parley/internal/api"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/db"
	"github.com/parleychat/parley/internal/queue"
	"github.com/parleychat/parley/internal/ratelimit"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.LoadServerConfig()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	store := db.NewStore(database)
	limiter := ratelimit.New(ratelimit.NewSQLiteCounter(database))
	q := queue.New(database)

	handler := api.NewHandler(store, limiter, q, logger)

	http.HandleFunc("/api/message", handler.SendMessage)
	http.HandleFunc("/api/messages", handler.GetMessages)
	http.HandleFunc("/api/chatrooms", handler.Chatrooms)

	logger.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
