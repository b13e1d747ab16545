package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production uses the JSON encoder; anything
// else gets the colored console encoder used during bench testing with the CLP.
func New(isProd bool) (*zap.Logger, error) {
	if isProd {
		return zap.NewProduction()
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build()
}
