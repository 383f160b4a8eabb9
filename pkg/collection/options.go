package collection

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
)

type options struct {
	log            logger.Logger
	now            func() time.Time
	newID          func() string
	owner          func() string
	persistTimeout time.Duration
}

func defaultOptions() options {
	return options{
		log:            logger.Nop(),
		now:            time.Now,
		newID:          uuid.NewString,
		owner:          func() string { return "" },
		persistTimeout: constants.DefaultPersistTimeout,
	}
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock sets the source of createdAt and updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the default UUID v4 id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithOwner sets the function returning the current user id, or an
// empty string when nobody is signed in.
func WithOwner(owner func() string) Option {
	return func(o *options) {
		if owner != nil {
			o.owner = owner
		}
	}
}

// WithPersistTimeout bounds persists whose context has no deadline.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) {
		o.persistTimeout = d
	}
}
