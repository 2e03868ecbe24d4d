// Package registry wires up the enabled source collectors.
package registry

import (
	"github.com/Michiel-H/HuizenZoeker/collectors"
	"github.com/Michiel-H/HuizenZoeker/collectors/funda"
	"github.com/Michiel-H/HuizenZoeker/collectors/huurwoningen"
	"github.com/Michiel-H/HuizenZoeker/collectors/pararius"
	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// All instantiates the collectors enabled in the configuration, in the
// configured order. Unknown source keys are logged and skipped.
func All(cfg *config.Config, logger *utils.Logger) []collectors.Collector {
	client := collectors.NewClient(cfg, logger)

	var out []collectors.Collector
	for _, key := range cfg.Sources {
		switch key {
		case "pararius":
			out = append(out, pararius.New(client, logger))
		case "huurwoningen":
			out = append(out, huurwoningen.New(cfg, logger))
		case "funda":
			out = append(out, funda.New(cfg, logger))
		default:
			logger.Warn("[collectors] Unknown source %q — skipping", key)
		}
	}
	return out
}
