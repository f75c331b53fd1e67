package workerpool

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("WPOL")
var spawn = panics.GoroutineWrapperFunc(log)
