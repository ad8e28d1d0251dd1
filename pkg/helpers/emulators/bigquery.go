package emulators

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

// BigQueryConfig lists the datasets to create up front. Tables are left to
// the load jobs, which create them with an autodetected schema.
type BigQueryConfig struct {
	GCImageContainer
	Datasets []string
}

const (
	testBigQueryEmulatorImage = "ghcr.io/goccy/bigquery-emulator:0.6.6"
	testBigQueryGRPCPort      = "9060"
	testBigQueryRestPort      = "9050"
)

func GetDefaultBigQueryConfig(projectID string, datasets []string) BigQueryConfig {
	return BigQueryConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testBigQueryEmulatorImage,
				EmulatorHTTPPort: testBigQueryRestPort,
				EmulatorGRPCPort: testBigQueryGRPCPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: false,
		},
		Datasets: datasets,
	}
}

// SetupBigQueryEmulator starts the emulator, creates the configured datasets
// and returns client options for it. The container is terminated on test cleanup.
func SetupBigQueryEmulator(t *testing.T, ctx context.Context, cfg BigQueryConfig) []option.ClientOption {
	t.Helper()
	httpPort := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	grpcPort := fmt.Sprintf("%s/tcp", cfg.EmulatorGRPCPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{httpPort, grpcPort},
		Cmd: []string{
			"--project=" + cfg.ProjectID,
			"--port=" + cfg.EmulatorHTTPPort,
			"--grpc-port=" + cfg.EmulatorGRPCPort,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(nat.Port(httpPort)).WithStartupTimeout(60*time.Second),
			wait.ForListeningPort(nat.Port(grpcPort)).WithStartupTimeout(60*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedGrpcPort, err := container.MappedPort(ctx, nat.Port(grpcPort))
	require.NoError(t, err)
	mappedRestPort, err := container.MappedPort(ctx, nat.Port(httpPort))
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, mappedRestPort.Port())
	opts := []option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication(), option.WithHTTPClient(&http.Client{})}

	if cfg.SetEnvVariables {
		t.Setenv("BIGQUERY_EMULATOR_HOST", fmt.Sprintf("%s:%s", host, mappedGrpcPort.Port()))
		t.Setenv("BIGQUERY_API_ENDPOINT", endpoint)
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	require.NoError(t, err)
	defer client.Close()

	for _, ds := range cfg.Datasets {
		err = client.Dataset(ds).Create(ctx, &bigquery.DatasetMetadata{Name: ds})
		if err != nil && !strings.Contains(err.Error(), "Already Exists") {
			require.NoError(t, err)
		}
	}

	return opts
}
