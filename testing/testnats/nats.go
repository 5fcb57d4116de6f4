package testnats

import (
	"context"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedContainer *NATSContainer
	sharedOnce      sync.Once
	sharedErr       error
)

type NATSContainer struct {
	Container testcontainers.Container
	URL       string
}

// SetupSharedNATS starts one NATS server per test binary.
func SetupSharedNATS(t *testing.T) *NATSContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	sharedOnce.Do(func() {
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "nats:2.10-alpine",
				ExposedPorts: []string{"4222/tcp"},
				WaitingFor:   wait.ForListeningPort("4222/tcp"),
			},
			Started: true,
		})
		if err != nil {
			sharedErr = err
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			sharedErr = err
			return
		}

		port, err := container.MappedPort(ctx, "4222")
		if err != nil {
			sharedErr = err
			return
		}

		sharedContainer = &NATSContainer{
			Container: container,
			URL:       "nats://" + host + ":" + port.Port(),
		}
	})

	require.NoError(t, sharedErr, "failed to start shared nats")
	return sharedContainer
}

func (nc *NATSContainer) Connect(t *testing.T) *nats.Conn {
	t.Helper()

	conn, err := nats.Connect(nc.URL)
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })

	return conn
}
