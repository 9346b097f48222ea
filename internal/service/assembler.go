package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Assembler converts heterogeneous raw client input into the one canonical
// stored-message shape, resolving cross-references and attaching provenance.
//
// It operates on exactly one raw input per call; callers needing batch
// behavior loop externally.
type Assembler struct {
	store  MessageStore
	logger *slog.Logger
	tracer trace.Tracer

	// injected for deterministic tests
	now      func() time.Time
	newToken func() uuid.UUID
}

func NewAssembler(store MessageStore, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("chat-delivery-service/assembler"),
		now:      time.Now,
		newToken: uuid.New,
	}
}

// Assemble validates the raw input, selects the message variant, resolves
// the reply reference, stamps provenance and persists the result.
//
// Validation failures come back as *model.ValidationError; the caller
// reports them to the originating session and keeps the connection open.
func (a *Assembler) Assemble(ctx context.Context, raw model.RawUserInput, room *model.Room, source model.Source, clientVersion int) (*model.Message, error) {
	ctx, span := a.tracer.Start(ctx, "assembler.Assemble")
	defer span.End()

	// 1. Resolve the reply reference first: a postback that points nowhere
	// is rejected before anything is persisted.
	var parentID *int64
	if raw.ReplyToken != nil {
		parent, err := a.store.FindByToken(ctx, *raw.ReplyToken)
		if err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				return nil, &model.ValidationError{Reason: "unknown reply token"}
			}
			return nil, fmt.Errorf("assembler: resolve reply token: %w", err)
		}
		parentID = &parent.ID
	}

	// 2. Select the variant.
	var msg *model.Message
	if raw.Code == "" {
		// Direct user message: exactly one of text / content reference.
		switch {
		case raw.Text != "":
			msg = &model.Message{Type: model.TypeText, Text: raw.Text}
		case raw.ContentURL != "":
			msg = &model.Message{Type: model.TypeImage, ContentURL: raw.ContentURL}
		default:
			return nil, &model.ValidationError{Reason: "neither text nor content reference given"}
		}
		// Handler-name binding for later routing; not validated here.
		msg.HandlerName = room.Type
		msg.Extras = map[string]any{}
	} else {
		// Postback / predefined message. Carries the extras bag verbatim;
		// no text/content exclusivity rule applies on this branch.
		extras := raw.Extras
		if extras == nil {
			extras = map[string]any{}
		}
		msg = &model.Message{
			Type:          model.TypePostback,
			Code:          raw.Code,
			Text:          raw.Text,
			ContentURL:    raw.ContentURL,
			PostbackValue: raw.PostbackValue,
			Extras:        extras,
		}
	}

	// 3. Stamp the record.
	msg.RoomID = room.ID
	msg.Source = source
	msg.PostbackParentID = parentID
	cv := clientVersion
	msg.ClientHandlerVersion = &cv
	msg.Token = a.newToken()
	msg.CreatedAt = a.now().UTC()

	// 4. Persist and return the stored message.
	stored, err := a.store.Save(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("assembler: save message: %w", err)
	}

	a.logger.Debug("message assembled",
		"room_id", stored.RoomID,
		"type", stored.Type.WireName(),
		"token", stored.Token)
	return stored, nil
}
