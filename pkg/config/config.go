package config

import (
	"github.com/tauraamui/wormhole/internal/config"
	"github.com/tauraamui/wormhole/pkg/configdef"
)

type CreateResolver interface {
	configdef.CreateResolver
}

func DefaultCreateResolver() CreateResolver {
	return config.DefaultCreateResolver()
}

// Defaults returns the values written to a freshly created config file.
func Defaults() configdef.Values {
	return config.DefaultValues()
}
