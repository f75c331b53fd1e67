package grpcserver

import (
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
)

var log = logger.RegisterSubSystem("GRPC")
var spawn = panics.GoroutineWrapperFunc(log)
