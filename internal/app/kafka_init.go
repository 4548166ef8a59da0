package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/service/outbox"
)

type producerFactory func(kafka.ProducerConfig) (*kafka.Producer, error)

// eventPipeline публикует события продаж из outbox в Kafka.
// Нулевое значение означает, что Kafka не настроена.
type eventPipeline struct {
	producer *kafka.Producer
	worker   *outbox.Worker
}

// newEventPipeline не возвращает ошибку: без Kafka сервис продолжает работать без публикации.
func newEventPipeline(cfg Config, repo domain.OutboxRepository, logger *log.Entry, dial producerFactory) eventPipeline {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("kafka is not configured, sale events are not published")
		return eventPipeline{}
	}

	producer, err := dial(kafka.ProducerConfig{Brokers: brokers, ClientID: cfg.KafkaClientID})
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka is unavailable, sale events are not published")
		return eventPipeline{}
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")

	worker := outbox.NewWorker(repo,
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	return eventPipeline{producer: producer, worker: worker}
}

func (p eventPipeline) enabled() bool {
	return p.worker != nil
}

// close вызывается после остановки worker.
func (p eventPipeline) close(logger *log.Entry) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
