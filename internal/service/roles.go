package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// RoleNone is what clients see for participants without an assigned role.
const RoleNone = "none"

// RoleResolver looks up participant roles for frame serialization, behind an
// LRU cache and a circuit breaker so a degraded persistence backend slows
// nothing down: on any failure the role degrades to "none".
type RoleResolver struct {
	rooms   RoomStore
	cache   *lru.Cache[string, string]
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewRoleResolver(rooms RoomStore, logger *slog.Logger) *RoleResolver {
	cache, _ := lru.New[string, string](10000)

	return &RoleResolver{
		rooms: rooms,
		cache: cache,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "room-roles",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: logger,
	}
}

// Resolve never fails: the role is cosmetic on the wire.
func (r *RoleResolver) Resolve(ctx context.Context, roomID, userID int64) string {
	key := fmt.Sprintf("%d:%d", roomID, userID)
	if role, ok := r.cache.Get(key); ok {
		return role
	}

	res, err := r.breaker.Execute(func() (any, error) {
		return r.rooms.CurrentRole(ctx, roomID, userID)
	})
	if err != nil {
		r.logger.Warn("role lookup failed", "room_id", roomID, "user_id", userID, "error", err)
		return RoleNone
	}

	role, _ := res.(string)
	if role == "" {
		role = RoleNone
	}
	r.cache.Add(key, role)
	return role
}

// RolesFor collects the roles of every user referenced by the batch.
func (r *RoleResolver) RolesFor(ctx context.Context, roomID int64, msgs []*model.Message) map[int64]string {
	roles := make(map[int64]string)
	for _, m := range msgs {
		if m.Source.Type == model.SourceUser {
			if _, ok := roles[m.Source.UserID]; !ok {
				roles[m.Source.UserID] = r.Resolve(ctx, roomID, m.Source.UserID)
			}
		}
		if m.TargetUserID != nil {
			if _, ok := roles[*m.TargetUserID]; !ok {
				roles[*m.TargetUserID] = r.Resolve(ctx, roomID, *m.TargetUserID)
			}
		}
	}
	return roles
}
