package admission

import (
	"context"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/time/rate"
	"sync"
)

var Logger = logger.GetLogger("admission")

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IAdmissionController decides whether a request may proceed to the store.
// A single controller is shared by all requests of a process.
type IAdmissionController interface {
	// Admit suspends the caller until the policy grants admission.
	// Waiting is never an error, Admit only fails if ctx ends before admission
	// is granted. In that case nothing is held and the returned permit is nil.
	// The caller must Release the permit on every exit path.
	Admit(ctx context.Context) (*Permit, error)
	// Name returns the name of the policy, used as metric label
	Name() string
}

// Permit is the proof of admission returned by Admit.
type Permit struct {
	once    sync.Once
	release func()
}

func newPermit(release func()) *Permit {
	return &Permit{release: release}
}

// Release gives back what the permit holds. Calling it more than once, or on a
// nil permit, has no effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Admission policies
const (
	PolicyConcurrency = "concurrency"
	PolicyTokenBucket = "token-bucket"
)

// Config selects and parametrizes the admission policy
type Config struct {
	Policy string
	// Max is the number of requests allowed in flight (concurrency policy)
	Max int64
	// Capacity is the size of the token bucket (token-bucket policy)
	Capacity int
	// RefillRate is the number of tokens added per second (token-bucket policy)
	RefillRate float64
}

// DefaultConfig is the bounded concurrency policy with 10 slots
func DefaultConfig() Config {
	return Config{
		Policy:     PolicyConcurrency,
		Max:        10,
		Capacity:   10,
		RefillRate: 10,
	}
}

// Validate checks the parameters of the selected policy
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyConcurrency:
		if c.Max < 1 {
			return fmt.Errorf("admission: max must be at least 1, got %d", c.Max)
		}
	case PolicyTokenBucket:
		if c.Capacity < 1 {
			return fmt.Errorf("admission: capacity must be at least 1, got %d", c.Capacity)
		}
		// a bucket that never refills would fail instead of suspend once empty
		if c.RefillRate <= 0 {
			return fmt.Errorf("admission: refill rate must be greater than 0, got %v", c.RefillRate)
		}
	default:
		return fmt.Errorf("admission: unknown policy %q (expected %s or %s)", c.Policy, PolicyConcurrency, PolicyTokenBucket)
	}
	return nil
}

// New creates the controller selected by config
func New(config Config) (IAdmissionController, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Policy {
	case PolicyTokenBucket:
		Logger.Infof("using token bucket admission (capacity %d, refill %.2f/s)", config.Capacity, config.RefillRate)
		return NewTokenBucket(config.Capacity, rate.Limit(config.RefillRate)), nil
	default:
		Logger.Infof("using bounded concurrency admission (max %d)", config.Max)
		return NewBoundedConcurrency(config.Max), nil
	}
}
