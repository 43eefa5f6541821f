package sdk

import (
	"context"
	"os"
	"time"

	"github.com/celerix-dev/schemes/internal/engine"
	pkgengine "github.com/celerix-dev/schemes/pkg/engine"
)

// EnvAPIAddr names the environment variable holding a remote API address.
const EnvAPIAddr = "SCHEMES_API_ADDR"

// New initializes the store based on the environment.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(dataDir string) (pkgengine.Store, error) {
	// 1. A reachable remote API wins.
	if addr := os.Getenv(EnvAPIAddr); addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := Connect(ctx, addr)
		if err == nil {
			return client, nil
		}
		// Unreachable: fall back to embedded mode.
	}

	// 2. Embedded mode: the same memory store the server runs, inside the
	// app process, persisted to dataDir.
	return engine.OpenMemStore(dataDir)
}
