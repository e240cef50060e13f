package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/protocol"
	"github.com/gr-butler/irlearner/store"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/ir"
)

const (
	qosAtLeastOnce = 1
	quiesceMs      = 250
)

// mqttClient is the part of mqtt.Client the sink uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type learnedPayload struct {
	Name      string          `json:"name"`
	Protocol  protocol.Tag    `json:"protocol"`
	Code      string          `json:"code,omitempty"`
	Pulses    protocol.Pulses `json:"pulses"`
	LearnedAt time.Time       `json:"learned_at"`
}

type keyPayload struct {
	Key        string `json:"key"`
	RemoteType string `json:"remote"`
	Repeat     bool   `json:"repeat"`
}

type MQTTSink struct {
	client  mqttClient
	broker  string
	prefix  string
	timeout time.Duration
}

// NewMQTTSink connects to broker. IRLEARN_MQTT_USER and
// IRLEARN_MQTT_PASSWORD are used when set.
func NewMQTTSink(broker string, prefix string) (*MQTTSink, error) {
	host, _ := os.Hostname()
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("irlearner-%s-%d", host, os.Getpid())).
		SetConnectTimeout(env.MQTTTimeout).
		SetAutoReconnect(true)
	if user, ok := os.LookupEnv("IRLEARN_MQTT_USER"); ok {
		opts.SetUsername(user)
		opts.SetPassword(os.Getenv("IRLEARN_MQTT_PASSWORD"))
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(env.MQTTTimeout) {
		return nil, errors.Errorf("timed out connecting to %v", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %v", broker)
	}
	logger.Infof("Connected to MQTT broker [%v]", broker)
	return newMQTTSink(c, broker, prefix), nil
}

func newMQTTSink(c mqttClient, broker string, prefix string) *MQTTSink {
	if prefix == "" {
		prefix = env.MQTTTopic
	}
	return &MQTTSink{
		client:  c,
		broker:  broker,
		prefix:  prefix,
		timeout: env.MQTTTimeout,
	}
}

func (m *MQTTSink) String() string {
	return "mqtt " + m.broker
}

// Publish sends a retained message so late subscribers still see the
// latest code for each name.
func (m *MQTTSink) Publish(ctx context.Context, cmd store.LearnedCommand) error {
	payload, err := json.Marshal(learnedPayload{
		Name:      cmd.Name,
		Protocol:  cmd.Protocol,
		Code:      cmd.Code,
		Pulses:    cmd.Pulses,
		LearnedAt: cmd.LearnedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode learned command")
	}
	topic := m.prefix + "/learned/" + cmd.Name
	return m.send(ctx, topic, true, payload)
}

func (m *MQTTSink) PublishKey(ctx context.Context, msg ir.Message) error {
	payload, err := json.Marshal(keyPayload{
		Key:        string(msg.Key),
		RemoteType: msg.RemoteType,
		Repeat:     msg.Repeat,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode key")
	}
	return m.send(ctx, m.prefix+"/key", false, payload)
}

func (m *MQTTSink) send(ctx context.Context, topic string, retained bool, payload []byte) error {
	tok := m.client.Publish(topic, qosAtLeastOnce, retained, payload)
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Errorf("timed out publishing to %v", topic)
	}
	if err := tok.Error(); err != nil {
		return errors.Wrapf(err, "failed to publish to %v", topic)
	}
	logger.Debugf("Published [%v] bytes to [%v]", len(payload), topic)
	return nil
}

func (m *MQTTSink) Close() error {
	m.client.Disconnect(quiesceMs)
	return nil
}
