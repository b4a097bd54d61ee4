package config

import (
	"github.com/tauraamui/wormhole/internal/config"
	"github.com/tauraamui/wormhole/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}
