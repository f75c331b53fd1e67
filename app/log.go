package app

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("NNAP")
var spawn = panics.GoroutineWrapperFunc(log)
