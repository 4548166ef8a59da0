package app

import (
	"errors"
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

func TestNewEventPipeline(t *testing.T) {
	dialErr := errors.New("no brokers reachable")

	tests := []struct {
		name        string
		brokers     string
		dialErr     error
		wantEnabled bool
		wantDialed  []string
		wantLog     string
	}{
		{name: "no brokers", brokers: "", wantLog: "kafka is not configured"},
		{name: "blank brokers", brokers: " , ", wantLog: "kafka is not configured"},
		{name: "dial failure", brokers: "kafka:9092", dialErr: dialErr, wantDialed: []string{"kafka:9092"}, wantLog: "kafka is unavailable"},
		{name: "enabled", brokers: "k1:9092, k2:9092", wantEnabled: true, wantDialed: []string{"k1:9092", "k2:9092"}, wantLog: "kafka producer initialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			var dialed []string
			dial := func(cfg kafka.ProducerConfig) (*kafka.Producer, error) {
				dialed = cfg.Brokers
				assert.Equal(t, "sales-test", cfg.ClientID)
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				return kafka.WrapSyncProducer(mocks.NewSyncProducer(t, nil)), nil
			}

			cfg := Config{KafkaBrokers: tt.brokers, KafkaClientID: "sales-test", KafkaTopic: "sales.events", KafkaDLQTopic: "sales.events.dlq"}
			p := newEventPipeline(cfg, memory.NewOutboxRepository(), log.NewEntry(logger), dial)
			defer p.close(log.NewEntry(logger))

			assert.Equal(t, tt.wantEnabled, p.enabled())
			assert.Equal(t, tt.wantDialed, dialed)
			require.NotNil(t, hook.LastEntry())
			assert.Contains(t, hook.Entries[0].Message, tt.wantLog)
		})
	}
}

func TestEventPipeline_CloseDisabled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	eventPipeline{}.close(log.NewEntry(logger))
	assert.Empty(t, hook.AllEntries())
}
