package profiling

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/util/panics"
	"github.com/pkg/errors"
)

// NewHandler returns the handler serving the runtime profiles under /debug/pprof
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
	return mux
}

// Start starts the profiling server on the given port. Close the returned
// server to stop it.
func Start(port string, log *logger.Logger) *http.Server {
	spawn := panics.GoroutineWrapperFunc(log)

	server := &http.Server{
		Addr:    net.JoinHostPort("", port),
		Handler: NewHandler(),
	}
	spawn("profiling.Start", func() {
		log.Infof("Profile server listening on %s", server.Addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Profile server stopped: %s", err)
		}
	})
	return server
}
