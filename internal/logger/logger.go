package logger

import (
	"go.uber.org/zap"
)

// New builds the sugared logger shared by every component. level is optional
// ("debug", "info", ...); an unknown level falls back to the config default.
func New(dev bool, level string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			cfg.Level = lvl
		}
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return z.Sugar(), nil
}

// Nop is used by tests and optional components.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
