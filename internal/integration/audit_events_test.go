//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/jvkenny/CLFleadservice/internal/adapter/audit"
	"github.com/jvkenny/CLFleadservice/internal/config"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

const testAuditTopic = "test-portal-audit-events"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka in a container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.1",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve broker addresses")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "find controller")

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAuditWriter_PublishesToKafka verifies the audit publisher against a
// real broker: events land on the topic keyed by kind, with the ID and
// timestamp headers the analytics consumers rely on.
func TestAuditWriter_PublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAuditTopic)

	cfg := &config.Config{
		AuditEnabled: true,
		AuditBrokers: []string{broker},
		AuditTopic:   testAuditTopic,
	}

	writer := audit.NewWriter(cfg, observability.NewMetricsForTesting(), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	published := []audit.Event{
		audit.NewEvent("query", "(customer_material = 'pb' OR utility_material = 'pb')"),
		audit.NewEvent("search", "len=7"),
		audit.NewEvent("query", "1=1"),
	}
	for _, e := range published {
		require.NoError(t, writer.Publish(ctx, e))
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAuditTopic,
		GroupID:     fmt.Sprintf("test-audit-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byID := map[string]audit.Event{}
	for _, e := range published {
		byID[e.ID] = e
	}

	for range published {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from audit topic")

		var got audit.Event
		require.NoError(t, json.Unmarshal(msg.Value, &got))

		want, ok := byID[got.ID]
		require.True(t, ok, "unexpected event %s on topic", got.ID)
		delete(byID, got.ID)

		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Detail, got.Detail)
		assert.Equal(t, []byte(want.Kind), msg.Key, "messages are keyed by kind")

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, want.ID, headers["event_id"])
		_, err = time.Parse(time.RFC3339, headers["recorded_at"])
		assert.NoError(t, err, "recorded_at should be valid RFC3339")
	}

	assert.Empty(t, byID, "every published event should arrive")
}
