package config

import (
	"github.com/tauraamui/wormhole/internal/config"
	"github.com/tauraamui/wormhole/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}
