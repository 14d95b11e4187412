package auth

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/contacts-api/internal/apperror"
)

// WHY BCRYPT?
// bcrypt is built to be slow, and the slowness is the point: every guess an
// attacker makes against a stolen hash costs the same quarter second a login
// does. It also generates a random salt per hash and embeds it, with the
// cost, in the output, so no separate salt column is needed:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// Fast digests like MD5 or SHA-256 fall to GPU cracking in minutes.

// DefaultCost is the production bcrypt work factor (~250ms per hash).
//
// COST TUNING RULE OF THUMB:
// Pick the cost that makes one hash take 200 to 300ms on production
// hardware. Each step doubles the work.
const DefaultCost = 12

// bcrypt silently truncates longer input, so it is rejected instead.
const maxPasswordBytes = 72

// PasswordService hashes and checks passwords with bcrypt.
//
// WHY A SEMAPHORE?
// A hash pins one CPU core for its whole duration. A burst of logins would
// otherwise start one bcrypt per request and starve every other handler.
// A weighted semaphore caps the hashes running at once; requests beyond the
// cap queue until a slot frees up or their context is cancelled.
type PasswordService struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordService returns a PasswordService with the given cost and
// worker count. Zero values pick DefaultCost and GOMAXPROCS.
func NewPasswordService(cost, workers int) *PasswordService {
	if cost <= 0 {
		cost = DefaultCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PasswordService{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

// NewPasswordServiceForTest uses bcrypt.MinCost. Never use it in production.
func NewPasswordServiceForTest() *PasswordService {
	return NewPasswordService(bcrypt.MinCost, 0)
}

// Hash returns the bcrypt hash of plaintext. The result embeds its own salt
// and cost:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
func (p *PasswordService) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", maxPasswordBytes))
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A malformed hash or a
// cancelled context yields false.
func (p *PasswordService) Verify(ctx context.Context, hash, plaintext string) bool {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy spends the same work as Verify against a hash no password
// matches. Login calls it for unknown emails so response time does not
// reveal whether an account exists. It always returns false.
func (p *PasswordService) VerifyDummy(ctx context.Context, plaintext string) bool {
	p.dummyOnce.Do(func() {
		// Never fails: the input is short and the cost is in range.
		p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("\x00no-such-account"), p.cost)
	})
	p.Verify(ctx, string(p.dummyHash), plaintext)
	return false
}
