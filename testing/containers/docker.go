//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync"

	"github.com/testcontainers/testcontainers-go"
)

var (
	dockerOnce sync.Once
	dockerErr  error
)

// dockerUnavailable probes the Docker daemon once per test binary and returns
// the reason it cannot be used, or nil.
func dockerUnavailable(ctx context.Context) error {
	dockerOnce.Do(func() {
		provider, err := testcontainers.NewDockerProvider()
		if err != nil {
			dockerErr = fmt.Errorf("docker provider: %w", err)
			return
		}
		defer provider.Close()

		if _, err := provider.DaemonHost(ctx); err != nil {
			dockerErr = fmt.Errorf("docker daemon: %w", err)
		}
	})
	return dockerErr
}
