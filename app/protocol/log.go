package protocol

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("PROT")
var spawn = panics.GoroutineWrapperFunc(log)
