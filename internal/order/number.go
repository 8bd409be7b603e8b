package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OrderNumberPrefix       = "MD"
	defaultNumberAttempts   = 8
	randomSuffixDigits      = 4
	timestampSuffixDigits   = 6
	timestampSuffixModuloBy = 1_000_000
)

type NumberChecker interface {
	ExistsByNumber(ctx context.Context, number string) (bool, error)
}

// NumberGenerator produces order numbers of the form MD + 6 time digits + 4 random digits.
// A collision appends one more random digit per attempt.
type NumberGenerator struct {
	checker     NumberChecker
	maxAttempts int
	now         func() time.Time
	randDigits  func(n int) (string, error)
}

func NewNumberGenerator(checker NumberChecker) *NumberGenerator {
	return &NumberGenerator{
		checker:     checker,
		maxAttempts: defaultNumberAttempts,
		now:         time.Now,
		randDigits:  randomDigits,
	}
}

func (g *NumberGenerator) Next(ctx context.Context) (string, error) {
	ts := g.now().Unix() % timestampSuffixModuloBy
	base := OrderNumberPrefix + fmt.Sprintf("%0*d", timestampSuffixDigits, ts)

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		suffix, err := g.randDigits(randomSuffixDigits + attempt)
		if err != nil {
			return "", fmt.Errorf("number generator: failed to read random digits: %w", err)
		}
		candidate := base + suffix

		exists, err := g.checker.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("number generator: failed to check order number %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		log.Warn().Str("order_number", candidate).Int("attempt", attempt+1).Msg("number generator: order number collision, regenerating")
	}

	log.Error().Int("attempts", g.maxAttempts).Msg("number generator: exhausted attempts")
	return "", ErrOrderNumberExhausted
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteString(strconv.FormatInt(d.Int64(), 10))
	}
	return b.String(), nil
}
