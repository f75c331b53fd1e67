package controlthread

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("CTRL")
var spawn = panics.GoroutineWrapperFunc(log)
