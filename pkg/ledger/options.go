package ledger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/pkg/admission"
	"github.com/tcfw/votem/pkg/tally"
)

type Option func(*Ledger) error

func WithDifficulty(d int) Option {
	return func(l *Ledger) error {
		if d < 0 {
			return errors.New("difficulty must not be negative")
		}
		l.difficulty = d
		return nil
	}
}

func WithRegistry(r *admission.Registry) Option {
	return func(l *Ledger) error {
		l.registry = r
		return nil
	}
}

func WithScheme(s *tally.Scheme) Option {
	return func(l *Ledger) error {
		l.scheme = s
		return nil
	}
}

// WithCandidates replaces the candidates reported before any vote is seen.
func WithCandidates(c ...string) Option {
	return func(l *Ledger) error {
		for _, id := range c {
			if id == "" {
				return errors.New("empty candidate id")
			}
		}
		l.defaults = append([]string(nil), c...)
		return nil
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(l *Ledger) error {
		l.broadcaster = b
		return nil
	}
}

func WithLogger(e *logrus.Entry) Option {
	return func(l *Ledger) error {
		l.logger = e
		return nil
	}
}

func WithMiningReward(amount int64) Option {
	return func(l *Ledger) error {
		if amount < 0 {
			return errors.New("mining reward must not be negative")
		}
		l.reward = amount
		return nil
	}
}
