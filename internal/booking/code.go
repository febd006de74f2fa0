package booking

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
)

// No 0/O/1/I, codes get read over the phone.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(prefix string, length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}

// newCode generates a booking code not yet present in the ledger. Collisions
// are retried a bounded number of times; exhausting the bound is a server
// error that must be surfaced, not silently dropped.
func (s *Service) newCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := randomCode(s.codePrefix, s.codeLength)
		if err != nil {
			return "", err
		}
		exists, err := s.ledger.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		observability.BookingCodeRetries.Inc()
	}
	return "", errors.Wrapf(domain.ErrCodeExhausted, "%d attempts", s.codeAttempts)
}
