package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/metrics"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/ratelimit"
)

var (
	ErrWrongPIN = errors.New("auth: wrong PIN")
	ErrNoPIN    = errors.New("auth: no PIN configured")
)

// WrongPINError tells the caller how many tries are left before lockout.
type WrongPINError struct {
	Remaining int
}

func (e *WrongPINError) Error() string        { return ErrWrongPIN.Error() }
func (e *WrongPINError) Is(target error) bool { return target == ErrWrongPIN }

// PINVerifier checks staff PINs and locks a key out after repeated failures.
type PINVerifier struct {
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

func NewPINVerifier(limiter *ratelimit.Limiter, log *slog.Logger) *PINVerifier {
	return &PINVerifier{limiter: limiter, log: log}
}

// Verify returns nil on a match, a *ratelimit.LockedError while locked out,
// and a *WrongPINError otherwise. The attempt is counted before the hash is
// compared, so parallel guesses cannot outrun the lock. A success clears the
// count.
func (v *PINVerifier) Verify(ctx context.Context, key, pin, encodedHash string) error {
	if strings.TrimSpace(encodedHash) == "" {
		return ErrNoPIN
	}
	n, err := v.limiter.Reserve(ctx, key)
	if err != nil {
		return err
	}

	ok, err := VerifyPIN(pin, encodedHash)
	if err != nil {
		return err
	}
	if ok {
		return v.limiter.Reset(ctx, key)
	}

	if n >= v.limiter.MaxAttempts() {
		metrics.IncLockout()
		v.log.Warn("pin lockout started", "key", key)
	}
	return &WrongPINError{Remaining: v.limiter.Remaining(n)}
}
