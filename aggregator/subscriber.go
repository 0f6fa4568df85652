package aggregator

import (
	"fmt"

	"github.com/avast/retry-go"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPConfig represents the config of the Subscriber
type AMQPConfig struct {
	Tag      string `yaml:"tag"`
	Exchange string `yaml:"exchange"`
	DSN      string `yaml:"dsn"`
	TLS      bool   `yaml:"tls"`
}

// Subscriber represents an AMQP subscriber
type Subscriber struct {
	config      AMQPConfig
	retryConfig RetryConfig
	topics      []string
	tag         string
	connection  *amqp.Connection
	channel     *amqp.Channel
	queue       *amqp.Queue
	logger      *zap.SugaredLogger
}

// Connect with the configured AMQP broker
func (s *Subscriber) dial() error {
	var err error

	if s.config.TLS {
		s.connection, err = amqp.DialTLS(s.config.DSN, nil)
	} else {
		s.connection, err = amqp.Dial(s.config.DSN)
	}
	if err != nil {
		return fmt.Errorf("Subscriber: %w", err)
	}

	s.logger.Info("Subscriber: connection established")

	return nil
}

// Get a Channel for the deliveries
func (s *Subscriber) getChannel() error {
	var err error

	s.channel, err = s.connection.Channel()
	if err != nil {
		s.logger.Errorf("Subscriber: %s", err)

		return fmt.Errorf("Subscriber: failed to get Channel")
	}

	s.logger.Info("Subscriber: got Channel")

	return nil
}

// Declare a non-durable Queue for the deliveries
func (s *Subscriber) declareQueue() (*amqp.Queue, error) {
	queueName := fmt.Sprintf("amqp-measurement-sampler-%s", s.tag)
	s.logger.Infof("Subscriber: declaring Queue %v", queueName)

	queue, err := s.channel.QueueDeclare(
		queueName,
		false, // durable
		true,  // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		s.logger.Errorf("Subscriber: %s", err)

		return nil, fmt.Errorf("Subscriber: failed to declare Queue")
	}

	s.logger.Info("Subscriber: declared Queue")

	return &queue, nil
}

// Bind the Queue to the configured topics
func (s *Subscriber) bindQueue() error {
	if s.queue == nil {
		return fmt.Errorf("Subscriber: Queue not declared")
	}

	for _, topic := range s.topics {
		s.logger.Infof("Subscriber: binding topic to Exchange (key: %q)", topic)

		err := s.channel.QueueBind(
			s.queue.Name,      // name
			topic,             // key
			s.config.Exchange, // exchange
			false,             // noWait
			nil,               // arguments
		)
		if err != nil {
			s.logger.Errorf("Subscriber: %s", err)

			return fmt.Errorf("Subscriber: failed to bind Queue")
		}
	}

	return nil
}

// Start consuming the bound Queue
func (s *Subscriber) consume() (<-chan amqp.Delivery, error) {
	deliveries, err := s.channel.Consume(
		s.queue.Name, // queue
		s.tag,        // consumer
		false,        // autoAck
		false,        // exclusive
		false,        // noLocal
		false,        // noWait
		nil,          // arguments
	)
	if err != nil {
		s.logger.Errorf("Subscriber: %s", err)

		return nil, fmt.Errorf("Subscriber: failed to consume Queue")
	}

	return deliveries, nil
}

// Delete the declared Queue if there a no more consumers
func (s *Subscriber) deleteQueue() error {
	if s.channel == nil || s.queue == nil {
		return nil
	}

	_, err := s.channel.QueueDelete(s.queue.Name, true, false, false)
	if err != nil {
		s.logger.Errorf("Subscriber: %s", err)

		return fmt.Errorf("Subscriber: failed to delete Queue")
	}

	return nil
}

// Subscribe to the topics defined in the AMQPConfig
func (s *Subscriber) Subscribe() (<-chan amqp.Delivery, error) {
	err := retry.Do(s.dial, s.retryConfig.options("Subscriber: dial", s.logger)...)
	if err != nil {
		return nil, err
	}

	var deliveries <-chan amqp.Delivery

	err = retry.Do(
		func() error {
			err := s.getChannel()
			if err != nil {
				return err
			}

			s.queue, err = s.declareQueue()
			if err != nil {
				return err
			}

			err = s.bindQueue()
			if err != nil {
				return err
			}

			deliveries, err = s.consume()

			return err
		},
		s.retryConfig.options("Subscriber: subscribe", s.logger)...,
	)
	if err != nil {
		return nil, err
	}

	return deliveries, nil
}

// Shutdown the Subscriber
func (s *Subscriber) Shutdown() error {
	s.logger.Info("Subscriber: shutting down")

	if s.connection == nil {
		s.logger.Info("Subscriber: shutdown OK")

		return nil
	}

	err := s.deleteQueue()
	if err != nil {
		return err
	}

	if err := s.connection.Close(); err != nil {
		return fmt.Errorf("Subscriber: connection close error: %w", err)
	}

	s.logger.Info("Subscriber: shutdown OK")

	return nil
}

// NewSubscriber creates a new Subscriber
func NewSubscriber(config AMQPConfig, retryConfig RetryConfig, topics []string, logger *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		config:      config,
		retryConfig: retryConfig,
		topics:      topics,
		tag:         config.Tag,
		logger:      logger,
	}
}
