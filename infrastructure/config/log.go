package config

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNFG")
