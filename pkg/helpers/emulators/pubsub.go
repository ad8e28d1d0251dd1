package emulators

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	testPubsubEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	testPubsubEmulatorPort  = "8085"
)

// PubsubConfig maps topic ids to a subscription id created on each.
type PubsubConfig struct {
	GCImageContainer
	TopicSubs map[string]string
}

func GetDefaultPubsubConfig(projectID string, topicSubs map[string]string) PubsubConfig {
	return PubsubConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testPubsubEmulatorImage,
				EmulatorHTTPPort: testPubsubEmulatorPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: true,
		},
		TopicSubs: topicSubs,
	}
}

// SetupPubsubEmulator starts the Pub/Sub emulator and creates the configured
// topics and subscriptions. Port startup is preferred to waiting on a log line.
func SetupPubsubEmulator(t *testing.T, ctx context.Context, cfg PubsubConfig) []option.ClientOption {
	t.Helper()
	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		Cmd:          []string{"gcloud", "beta", "emulators", "pubsub", "start", fmt.Sprintf("--project=%s", cfg.ProjectID), fmt.Sprintf("--host-port=0.0.0.0:%s", cfg.EmulatorHTTPPort)},
		WaitingFor:   wait.ForListeningPort(nat.Port(port)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	emulatorHost := fmt.Sprintf("%s:%s", host, mapped.Port())

	t.Logf("Pub/Sub emulator container started, listening on: %s", emulatorHost)
	if cfg.SetEnvVariables {
		t.Setenv("PUBSUB_EMULATOR_HOST", emulatorHost)
	}
	clientOptions := []option.ClientOption{option.WithEndpoint(emulatorHost), option.WithoutAuthentication()}

	adminClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions...)
	require.NoError(t, err)
	defer adminClient.Close()

	for topicID, subID := range cfg.TopicSubs {
		topic := adminClient.Topic(topicID)
		exists, err := topic.Exists(ctx)
		require.NoError(t, err)
		if !exists {
			topic, err = adminClient.CreateTopic(ctx, topicID)
			require.NoError(t, err, "Failed to create Pub/Sub topic")
		}

		sub := adminClient.Subscription(subID)
		exists, err = sub.Exists(ctx)
		require.NoError(t, err)
		if !exists {
			_, err = adminClient.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
			require.NoError(t, err, "Failed to create Pub/Sub subscription")
		}
	}

	return clientOptions
}
