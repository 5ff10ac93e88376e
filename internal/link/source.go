package link

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"drink-detector/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler receives raw notification payloads
type Handler func(payload []byte)

// Source produces payloads until ctx is done or the input ends
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// MQTTSource subscribes to the topic a BLE gateway publishes the wearable's
// notifications on
type MQTTSource struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTSource connects to the broker
func NewMQTTSource(cfg config.StreamConfig, logger *zap.Logger) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTT.Broker))

	return &MQTTSource{
		client: client,
		topic:  cfg.Topic(),
		qos:    cfg.MQTT.QoS,
		logger: logger,
	}, nil
}

// Run subscribes and blocks until ctx is done. Unsubscribe and disconnect
// are best effort on the way out.
func (s *MQTTSource) Run(ctx context.Context, handle Handler) error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, token.Error())
	}

	s.logger.Info("Subscribed to notifications", zap.String("topic", s.topic))

	<-ctx.Done()

	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("Failed to unsubscribe", zap.String("topic", s.topic), zap.Error(token.Error()))
	}
	s.client.Disconnect(250)

	s.logger.Info("MQTT source stopped")
	return nil
}

// LineSource reads one payload per line, for stdin or a recorded session
type LineSource struct {
	r      io.Reader
	logger *zap.Logger
}

// NewLineSource creates a source over r
func NewLineSource(r io.Reader, logger *zap.Logger) *LineSource {
	return &LineSource{
		r:      r,
		logger: logger,
	}
}

// Run feeds every non-empty line to handle until EOF or ctx is done
func (s *LineSource) Run(ctx context.Context, handle Handler) error {
	scanner := bufio.NewScanner(s.r)
	lines := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		handle(append([]byte(nil), line...))
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read payloads: %w", err)
	}

	s.logger.Info("Line source exhausted", zap.Int("lines", lines))
	return nil
}
