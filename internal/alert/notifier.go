// Package alert содержит реализации domain.Notifier для оповещения оператора.
package alert

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
)

// KafkaNotifier публикует оповещения в выделенный Kafka-топик.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	logger   *log.Entry
}

// NewKafkaNotifier создаёт notifier поверх существующего producer.
func NewKafkaNotifier(producer *kafka.Producer, logger *log.Entry) *KafkaNotifier {
	if logger == nil {
		logger = log.WithField("component", "alert-notifier")
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    kafka.TopicAlerts,
		logger:   logger,
	}
}

// Notify отправляет оповещение. Ошибка доставки возвращается вызывающему,
// но вызывающий обязан трактовать её как fire-and-forget.
func (n *KafkaNotifier) Notify(subject, body string) error {
	event := kafka.NewAlertEvent(uuid.NewString(), subject, body)
	return n.producer.PublishEvent(n.topic, event.ID, event)
}

// LogNotifier пишет оповещения в лог; используется, когда Kafka не настроена.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier, пишущий в logrus.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "alert-notifier")
	}
	return &LogNotifier{logger: logger}
}

// Notify пишет оповещение уровнем Warn.
func (n *LogNotifier) Notify(subject, body string) error {
	n.logger.WithField("subject", subject).Warn(body)
	return nil
}

var _ domain.Notifier = (*KafkaNotifier)(nil)
var _ domain.Notifier = (*LogNotifier)(nil)
