// Package util holds helpers for tests that need real infrastructure.
package util

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoImage = "eclipse-mosquitto:2.0"

// ReadyTimeout bounds how long Mosquitto may take to accept a client.
const ReadyTimeout = 10 * time.Second

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`

// DockerAvailable reports whether DOCKER_AVAILABLE enables container tests.
func DockerAvailable() bool {
	switch strings.ToLower(os.Getenv("DOCKER_AVAILABLE")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Mosquitto starts a throwaway broker for t and returns its tcp:// URL. The
// test is skipped when Docker is not enabled; the container is removed when
// the test ends.
func Mosquitto(t testing.TB) string {
	t.Helper()
	if !DockerAvailable() {
		t.Skip("DOCKER_AVAILABLE not set")
	}
	ctx := context.Background()
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        mosquittoImage,
			ExposedPorts: []string{"1883/tcp"},
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader(mosquittoConf),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForListeningPort("1883/tcp").WithStartupTimeout(ReadyTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		t.Fatalf("mosquitto endpoint: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, ReadyTimeout)
	defer cancel()
	if err := probe(waitCtx, endpoint); err != nil {
		t.Fatalf("mosquitto not ready: %v", err)
	}
	return endpoint
}

// probe connects until the broker answers CONNACK.
func probe(ctx context.Context, url string) error {
	opts := paho.NewClientOptions().AddBroker(url).SetClientID(fmt.Sprintf("probe-%d", time.Now().UnixNano()))
	for {
		cli := paho.NewClient(opts)
		tok := cli.Connect()
		if tok.WaitTimeout(time.Second) && tok.Error() == nil {
			cli.Disconnect(50)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
