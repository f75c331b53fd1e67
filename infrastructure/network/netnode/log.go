package netnode

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("NTND")
var spawn = panics.GoroutineWrapperFunc(log)
