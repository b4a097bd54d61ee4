package config

import (
	"github.com/tauraamui/wormhole/internal/config"
	"github.com/tauraamui/wormhole/pkg/configdef"
)

type Creator interface {
	configdef.Creator
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}
