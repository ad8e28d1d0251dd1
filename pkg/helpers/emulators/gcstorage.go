package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	testGCSEmulatorImage = "fsouza/fake-gcs-server:1.52"
	testGCSEmulatorPort  = "4443"
)

type GCSConfig struct {
	GCImageContainer
	BaseBucket  string
	BaseStorage string
}

func GetDefaultGCSConfig(projectID, baseBucket string) GCSConfig {
	return GCSConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testGCSEmulatorImage,
				EmulatorHTTPPort: testGCSEmulatorPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: true,
		},
		BaseBucket:  baseBucket,
		BaseStorage: "/storage/v1/b",
	}
}

// SetupGCSEmulator starts fake-gcs-server, creates cfg.BaseBucket and returns
// a client pointed at it. The container and client are released on test cleanup.
func SetupGCSEmulator(t *testing.T, ctx context.Context, cfg GCSConfig) *storage.Client {
	t.Helper()

	httpPort := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{httpPort},
		Cmd:          []string{"-scheme", "http", "-port", cfg.EmulatorHTTPPort},
		WaitingFor: wait.ForHTTP(cfg.BaseStorage).WithPort(nat.Port(httpPort)).WithStatusCodeMatcher(
			func(status int) bool {
				return status > 0
			}).WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(httpPort))
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://%s:%s/storage/v1/", host, port.Port())

	if cfg.SetEnvVariables {
		t.Setenv("STORAGE_EMULATOR_HOST", fmt.Sprintf("%s:%s", host, port.Port()))
	}

	gcsClient, err := storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gcsClient.Close() })

	err = gcsClient.Bucket(cfg.BaseBucket).Create(ctx, cfg.ProjectID, nil)
	require.NoError(t, err)

	return gcsClient
}
