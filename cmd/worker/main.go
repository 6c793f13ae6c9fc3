package main

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/parleychat/parley/internal/config"
	ctxpkg "github.com/parleychat/parley/internal/context"
	"github.com/parleychat/parley/internal/db"
	"github.com/parleychat/parley/internal/dispatch"
	"github.com/parleychat/parley/internal/llm"
	"github.com/parleychat/parley/internal/queue"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	store := db.NewStore(database)

	service, err := llm.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	assembler := ctxpkg.NewAssembler(service, llm.SafeInputTokens, logger)
	dispatcher := dispatch.New(store, assembler, service, logger)
	q := queue.New(database)

	sleep := time.Duration(cfg.SleepSeconds) * time.Second
	ctx := context.Background()

	logger.Info("worker running", zap.String("model", cfg.OpenAIModel))

	for {
		task, err := q.Claim(ctx)
		if err != nil {
			logger.Error("failed to claim task", zap.Error(err))
			time.Sleep(sleep)
			continue
		}
		if task == nil {
			time.Sleep(sleep)
			continue
		}

		var payload dispatch.Payload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			logger.Error("malformed task payload",
				zap.Int64("task_id", task.ID),
				zap.Error(err))
			q.Fail(ctx, task.ID, "malformed payload: "+err.Error())
			continue
		}

		logger.Info("processing task",
			zap.Int64("task_id", task.ID),
			zap.String("chatroom_id", payload.ChatroomID),
			zap.Int64("attempt", task.Attempts))

		if err := dispatcher.Process(ctx, payload); err != nil {
			logger.Error("dispatch failed",
				zap.Int64("task_id", task.ID),
				zap.String("chatroom_id", payload.ChatroomID),
				zap.Error(err))
			q.Fail(ctx, task.ID, err.Error())
			continue
		}

		if err := q.Done(ctx, task.ID); err != nil {
			logger.Error("failed to ack task", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
}
