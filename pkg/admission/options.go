package admission

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Option func(*Registry) error

// WithClock overrides the time source used for code expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		if now == nil {
			return errors.New("nil clock")
		}
		r.now = now
		return nil
	}
}

func WithOTPExpiry(d time.Duration) Option {
	return func(r *Registry) error {
		if d <= 0 {
			return errors.New("otp expiry must be positive")
		}
		r.expiry = d
		return nil
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(r *Registry) error {
		r.logger = l
		return nil
	}
}
