package logging

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Entry
)

func init() {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger = logrus.NewEntry(l)
	}
}

func SetLevel(l logrus.Level) {
	logger.Logger.SetLevel(l)
}

func Entry() *logrus.Entry {
	return logger
}

// Component returns an entry tagged with the named component.
func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}
