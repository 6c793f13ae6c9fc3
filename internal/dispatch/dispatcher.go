package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	ctxpkg "github.com/parleychat/parley/internal/context"
	"github.com/parleychat/parley/internal/db"
	"github.com/parleychat/parley/internal/models"
)

// Preamble is the assistant's behavioral contract; the assembler never
// trims it out of the window.
const Preamble = "You are an intelligent and helpful AI assistant. Answer user questions clearly, accurately, and concisely. Provide additional context or suggestions when helpful."

const (
	exhaustedReply = "Your chat history is too long to continue.\nPlease create a new chatroom to start fresh."
	errorReply     = "Error getting a response from the assistant. Please try again."
)

// Payload is the unit of work the API enqueues and the worker consumes.
// History is a snapshot taken at submission time and excludes the pending
// message itself; it is never re-read mid-flight.
type Payload struct {
	ChatroomID  string           `json:"chatroom_id"`
	History     []ctxpkg.Message `json:"history"`
	UserMessage string           `json:"user_message"`
}

// Generator produces a reply for an assembled window. It may fail or time
// out; the dispatcher recovers locally.
type Generator interface {
	Generate(ctx context.Context, window ctxpkg.Window) (string, error)
}

// Dispatcher turns one queued payload into exactly one persisted assistant
// turn. There is no synchronous caller to report to, so every failure mode
// short of a persistence error degrades into a deterministic fallback reply.
type Dispatcher struct {
	store     *db.Store
	assembler *ctxpkg.Assembler
	generator Generator
	logger    *zap.Logger
}

func New(store *db.Store, assembler *ctxpkg.Assembler, generator Generator, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, assembler: assembler, generator: generator, logger: logger}
}

// Process assembles the window, calls the backend, and appends the reply.
// Only a persistence failure is returned; the queue will retry it, and a
// retry after a partial failure may produce a duplicate assistant turn.
func (d *Dispatcher) Process(ctx context.Context, payload Payload) error {
	var reply string

	window, err := d.assembler.Assemble(payload.History, payload.UserMessage, Preamble)
	switch {
	case errors.Is(err, ctxpkg.ErrExhausted):
		d.logger.Info("context exhausted, sending restart reply",
			zap.String("chatroom_id", payload.ChatroomID),
			zap.Int("history_len", len(payload.History)))
		reply = exhaustedReply
	case err != nil:
		d.logger.Error("failed to assemble context", zap.String("chatroom_id", payload.ChatroomID), zap.Error(err))
		reply = errorReply
	default:
		reply, err = d.generator.Generate(ctx, window)
		if err != nil {
			d.logger.Error("generation failed, sending fallback reply",
				zap.String("chatroom_id", payload.ChatroomID),
				zap.Error(err))
			reply = errorReply
		}
	}

	msg := &models.Message{
		ChatroomID: payload.ChatroomID,
		Sender:     models.SenderAssistant,
		Content:    reply,
	}
	if err := d.store.SaveMessage(msg); err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}

	d.logger.Info("assistant reply persisted",
		zap.String("chatroom_id", payload.ChatroomID),
		zap.Int64("message_id", msg.ID))
	return nil
}
