package train

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// connectAttempts bounds how long a run waits for the broker before
// continuing without MQTT.
const connectAttempts = 3

// publishTimeout bounds the wait for a single publish acknowledgement.
const publishTimeout = 2 * time.Second

// InitMQTT connects to the broker used by the metrics sink.
// If neither MQTT_BROKER nor the config names a broker, MQTT is disabled and
// this returns nil, nil.
func InitMQTT(config MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = config.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.ClientID
	}
	if clientID == "" {
		clientID = "rotsim"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	})

	client := mqtt.NewClient(opts)
	if err := connectWithRetry(client, connectAttempts, time.Second); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	return client, nil
}

// connectWithRetry tries to connect up to attempts times with exponential backoff.
func connectWithRetry(client mqtt.Client, attempts int, retryDelay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		log.Println("Connecting to MQTT broker...")

		token := client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				return nil
			}
			lastErr = token.Error()
			log.Printf("MQTT connection failed: %v", lastErr)
		} else {
			lastErr = fmt.Errorf("connection timeout")
			log.Println("MQTT connection timeout")
		}

		if i < attempts-1 {
			log.Printf("Retrying MQTT connection in %v...", retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}
	return lastErr
}

// ScalarMessage is the JSON payload of one published progress value.
// Value is null when the scalar is not finite.
type ScalarMessage struct {
	RunID     string   `json:"runId"`
	Series    string   `json:"series"`
	Value     *float64 `json:"value"`
	Step      int      `json:"step"`
	Timestamp int64    `json:"timestamp"`
}

// MQTTSink publishes every scalar to {prefix}/{runID}/{series}.
type MQTTSink struct {
	client        mqtt.Client
	publishPrefix string
	runID         string
	qos           byte
	retain        bool
	mu            sync.Mutex
	published     int
}

// NewMQTTSink creates a sink publishing through client.
// MQTT_PUBLISH_PREFIX overrides prefix; both empty means "rotsim".
func NewMQTTSink(client mqtt.Client, prefix, runID string) *MQTTSink {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "rotsim"
	}
	return &MQTTSink{
		client:        client,
		publishPrefix: prefix,
		runID:         runID,
		qos:           1,
		retain:        false,
	}
}

// Topic returns the topic a series is published to.
func (s *MQTTSink) Topic(series string) string {
	return fmt.Sprintf("%s/%s/%s", s.publishPrefix, s.runID, series)
}

// AddScalar implements Sink.
func (s *MQTTSink) AddScalar(series string, value float64, step int) error {
	if s.client == nil || !s.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := ScalarMessage{
		RunID:     s.runID,
		Series:    series,
		Step:      step,
		Timestamp: time.Now().Unix(),
	}
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		msg.Value = &value
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling scalar: %w", err)
	}

	topic := s.Topic(series)
	if err := waitPublished(s.client.Publish(topic, s.qos, s.retain, payload), topic); err != nil {
		return err
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

// Published returns the number of scalars sent successfully.
func (s *MQTTSink) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// Close publishes a final status message and disconnects.
func (s *MQTTSink) Close() error {
	if s.client == nil || !s.client.IsConnected() {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"runId":     s.runID,
		"published": s.Published(),
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/status", s.publishPrefix, s.runID)
	pubErr := waitPublished(s.client.Publish(topic, s.qos, true, payload), topic)

	log.Println("Disconnecting from MQTT broker...")
	s.client.Disconnect(250)
	return pubErr
}

// waitPublished waits for a publish token and reports a timeout as an error.
func waitPublished(token mqtt.Token, topic string) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
