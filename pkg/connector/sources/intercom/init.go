package intercom

import (
	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/connector/registry"
)

func init() {
	registry.RegisterSource(sourceName, func(cfg *config.BaseConfig) (core.Source, error) {
		return New(cfg)
	})
}
