package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.Logger
	once     sync.Once
)

// New builds the process-wide zap logger. Development mode gets the
// human-readable console encoder, everything else gets production JSON.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		if env == "development" {
			instance, err = zap.NewDevelopment()
		} else {
			instance, err = zap.NewProduction()
		}
	})
	return instance, err
}
