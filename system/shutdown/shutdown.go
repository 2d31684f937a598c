package shutdown

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/datadog"
)

var exit = os.Exit

var (
	mu      sync.Mutex
	closers []io.Closer
)

// OnExit registers c to be closed before the process exits. Closers run in
// reverse registration order.
func OnExit(c io.Closer) {
	mu.Lock()
	defer mu.Unlock()
	closers = append(closers, c)
}

func Shutdown() {
	closeAll()
	datadog.Flush()
	log.Info().Msg("Provisioner stopped")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	closeAll()
	datadog.Flush()
	exit(1)
}

func closeAll() {
	mu.Lock()
	pending := closers
	closers = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource during shutdown")
		}
	}
}
