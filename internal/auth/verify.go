// Package auth implements qr_verify(token): an atomic single-use token
// consumption primitive backed by the store's GETDEL.
package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/mysql-redis-adapter/internal/metrics"
	"github.com/edvin/mysql-redis-adapter/internal/model"
	"github.com/edvin/mysql-redis-adapter/internal/store"
)

// verifiedAtFormat matches the wall-clock format used throughout the data
// model for timestamps (created_at, verified_at).
const verifiedAtFormat = "2006-01-02 15:04:05"

// Verifier consumes auth:<token> keys.
type Verifier struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// New builds a Verifier against store s.
func New(s store.Store, log zerolog.Logger) *Verifier {
	return &Verifier{store: s, log: log, now: time.Now}
}

// notFound is the zero-row result returned for both "key absent" and
// "payload unparseable" — the two cases are indistinguishable to a caller,
// by design: neither leaks why a token failed to verify.
func notFound() model.VerifyResult {
	return model.VerifyResult{Verified: false}
}

// Verify atomically reads and deletes auth:<token>. Two concurrent callers
// racing the same token are guaranteed that at most one observes
// Verified == true; GET-then-DEL would not provide that guarantee.
func (v *Verifier) Verify(ctx context.Context, token string) model.VerifyResult {
	key := "auth:" + token
	payload, err := v.store.GetDel(ctx, key)
	if err != nil {
		if err != store.ErrNotFound {
			metrics.RedisErrorsTotal.Inc()
			v.log.Error().Str("operation", "auth_getdel").Err(err).Msg("redis_connection_error")
		}
		return notFound()
	}

	var tok model.AuthToken
	if err := json.Unmarshal([]byte(payload), &tok); err != nil {
		v.log.Warn().Str("key", key).Err(err).Msg("token_payload_unparseable")
		return notFound()
	}

	return model.VerifyResult{
		Verified:   true,
		UserID:     tok.UserID,
		Facility:   tok.Facility,
		VerifiedAt: v.now().UTC().Format(verifiedAtFormat),
	}
}
