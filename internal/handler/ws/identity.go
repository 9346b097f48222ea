package ws

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/webitel/chat-delivery-service/internal/service"
)

// Interface guard
var _ service.Identity = (*HeaderIdentity)(nil)

// HeaderIdentity resolves the caller from the X-User-Id header set by the
// auth proxy in front of this service. (In production: validated upstream
// via JWT/Cookie; this service trusts the proxied header.)
type HeaderIdentity struct{}

func NewHeaderIdentity() *HeaderIdentity { return &HeaderIdentity{} }

func (HeaderIdentity) CurrentUser(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-Id")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	if raw == "" {
		return 0, errors.New("no user identity on request")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New("malformed user identity")
	}
	return userID, nil
}
