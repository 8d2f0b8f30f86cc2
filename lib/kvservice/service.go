package kvservice

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/admission"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var Logger = logger.GetLogger("kvservice")

// IKeyValue is the operation set of the key-value service. It is implemented
// by KeyValueService and by the rpc client.
type IKeyValue interface {
	// Store creates a record. A *StatusError with CodeAlreadyExists is returned if
	// the key is present.
	Store(ctx context.Context, key, value string) error
	// Retrieve returns the value of a record. A *StatusError with CodeNotFound is
	// returned if the key is absent.
	Retrieve(ctx context.Context, key string) (string, error)
}

const (
	opStore    = "store"
	opRetrieve = "retrieve"
)

// DefaultWorkDelay is the pause between admission and the store call
const DefaultWorkDelay = 200 * time.Millisecond

// Options tune the behaviour of the service
type Options struct {
	// WorkDelay is slept after admission and before the store call, so the
	// effect of admission control is observable under load. Zero disables it.
	WorkDelay time.Duration
	// CoarseErrors maps every Store failure to CodeAlreadyExists and every
	// Retrieve failure to CodeNotFound, instead of distinguishing unavailable
	// and canceled outcomes.
	CoarseErrors bool
}

// DefaultOptions returns the options with the default work delay
func DefaultOptions() Options {
	return Options{WorkDelay: DefaultWorkDelay}
}

// KeyValueService composes the admission controller and the store
type KeyValueService struct {
	controller admission.IAdmissionController
	store      store.IStore
	opts       Options
}

// New creates the service. The controller and the store are shared by all requests.
func New(controller admission.IAdmissionController, s store.IStore, opts Options) *KeyValueService {
	if opts.WorkDelay < 0 {
		opts.WorkDelay = 0
	}
	return &KeyValueService{
		controller: controller,
		store:      s,
		opts:       opts,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see kvservice.IKeyValue)
// --------------------------------------------------------------------------

func (s *KeyValueService) Store(ctx context.Context, key, value string) error {
	return s.handle(ctx, opStore, key, func(ctx context.Context) error {
		return s.store.Put(ctx, key, value)
	})
}

func (s *KeyValueService) Retrieve(ctx context.Context, key string) (string, error) {
	var value string
	err := s.handle(ctx, opRetrieve, key, func(ctx context.Context) (err error) {
		value, err = s.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

// handle runs op: admit -> work delay -> store call -> map outcome.
// The permit is released on every path after admission.
func (s *KeyValueService) handle(ctx context.Context, op, key string, call func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		code := CodeOf(err)
		metrics.GetOrCreateCounter(fmt.Sprintf(`kvgate_requests_total{op=%q,code=%q}`, op, code)).Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`kvgate_request_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	}()

	permit, err := s.controller.Admit(ctx)
	if err != nil {
		return s.mapError(op, fmt.Errorf("admission abandoned: %w", err))
	}
	defer permit.Release()

	if err := sleep(ctx, s.opts.WorkDelay); err != nil {
		return s.mapError(op, fmt.Errorf("canceled during work delay: %w", err))
	}

	if err := guard(ctx, call); err != nil {
		return s.mapError(op, err)
	}
	return nil
}

// guard runs call and turns a panic into an unavailable store error
func guard(ctx context.Context, call func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("recovered from panic in store call: %v", r)
			err = store.Errorf(store.RetCUnavailable, "store call panicked: %v", r)
		}
	}()
	return call(ctx)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mapError converts an error of the admission controller or the store into a *StatusError
func (s *KeyValueService) mapError(op string, err error) *StatusError {
	fallback := CodeAlreadyExists
	if op == opRetrieve {
		fallback = CodeNotFound
	}

	if s.opts.CoarseErrors {
		return NewStatusError(fallback, err.Error())
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewStatusError(CodeCanceled, err.Error())
	case errors.Is(err, store.ErrKeyAlreadyExists):
		return NewStatusError(CodeAlreadyExists, err.Error())
	case errors.Is(err, store.ErrKeyNotFound):
		return NewStatusError(CodeNotFound, err.Error())
	case errors.Is(err, store.ErrBackingStoreUnavailable):
		Logger.Warningf("%s failed, backing store unavailable: %v", op, err)
		return NewStatusError(CodeUnavailable, err.Error())
	default:
		return NewStatusError(fallback, err.Error())
	}
}
