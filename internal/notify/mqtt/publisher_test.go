package mqtt_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/internal/notify/mqtt"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupBroker starts a Mosquitto container that accepts anonymous clients.
func setupBroker(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)

	return "tcp://" + host + ":" + port.Port()
}

func TestTopic(t *testing.T) {
	tenantID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "sensordash/11111111-1111-1111-1111-111111111111/door", mqtt.Topic("sensordash", tenantID))
}

func TestNewPublisher_UnreachableBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test")
	}
	_, err := mqtt.NewPublisher(config.MQTTConfig{BrokerURL: "tcp://127.0.0.1:1", ClientID: "test"})
	assert.Error(t, err)
}

func TestPublish_RetainedDoorEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	broker := setupBroker(t)

	p, err := mqtt.NewPublisher(config.MQTTConfig{BrokerURL: broker, ClientID: "publisher", TopicPrefix: "sensordash"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	event := models.DoorEvent{TenantID: uuid.New(), RecordID: 7, DoorState: 1, RecordedAt: time.Now().UTC().Truncate(time.Microsecond)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, event))

	// Subscribe after publishing; the retained message must still arrive.
	received := make(chan []byte, 1)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("subscriber")
	sub := paho.NewClient(opts)
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { sub.Disconnect(100) })

	token = sub.Subscribe(mqtt.Topic("sensordash", event.TenantID), 1, func(_ paho.Client, msg paho.Message) {
		received <- msg.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	select {
	case payload := <-received:
		var got models.DoorEvent
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, event.RecordID, got.RecordID)
		assert.Equal(t, 1, got.DoorState)
	case <-time.After(5 * time.Second):
		t.Fatal("retained door event not delivered")
	}
}
