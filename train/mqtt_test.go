package train

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	client, err := InitMQTT(MQTTConfig{})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestConnectWithRetry(t *testing.T) {
	c := NewMockClient()
	require.NoError(t, connectWithRetry(c, 3, time.Millisecond))
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, c.ConnectCalls())

	failing := NewMockClient()
	failing.SetConnectError(errors.New("refused"))
	err := connectWithRetry(failing, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, "refused", err.Error())
	assert.Equal(t, 3, failing.ConnectCalls())
}

func TestMQTTSink_AddScalar(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	c := NewMockClient()
	c.SetConnected(true)
	s := NewMQTTSink(c, "experiments", "run-1")

	require.NoError(t, s.AddScalar(SeriesTrainLoss, 0.25, 3))

	msgs := c.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "experiments/run-1/training/loss", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.False(t, msgs[0].Retain)

	var got ScalarMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, SeriesTrainLoss, got.Series)
	assert.Equal(t, 3, got.Step)
	require.NotNil(t, got.Value)
	assert.Equal(t, 0.25, *got.Value)
	assert.NotZero(t, got.Timestamp)
	assert.Equal(t, 1, s.Published())
}

func TestMQTTSink_NonFiniteValue(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)
	s := NewMQTTSink(c, "p", "r")

	require.NoError(t, s.AddScalar("training/loss", math.Inf(1), 0))
	require.NoError(t, s.AddScalar("training/loss", math.NaN(), 1))

	for _, m := range c.GetPublishedMessages() {
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(m.Payload, &got))
		assert.Nil(t, got["value"])
	}
}

func TestMQTTSink_Errors(t *testing.T) {
	c := NewMockClient()
	s := NewMQTTSink(c, "p", "r")
	assert.Error(t, s.AddScalar("x", 1, 0), "disconnected client")

	c.SetConnected(true)
	c.SetPublishError(errors.New("broker full"))
	err := s.AddScalar("x", 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing to p/r/x")
	assert.Equal(t, 0, s.Published())

	assert.Error(t, NewMQTTSink(nil, "p", "r").AddScalar("x", 1, 0))
}

func TestMQTTSink_PublishTimeout(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)
	c.SetPublishStalled(true)
	s := NewMQTTSink(c, "p", "r")

	err := s.AddScalar("x", 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing to p/r/x: timeout")
	assert.Equal(t, 0, s.Published(), "timed out values are not counted")

	err = s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p/r/status: timeout")
	assert.False(t, c.IsConnected(), "close still disconnects")
}

func TestMQTTSink_PrefixOverride(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	assert.Equal(t, "from-env/r/a", NewMQTTSink(nil, "cfg", "r").Topic("a"))

	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	assert.Equal(t, "rotsim/r/a", NewMQTTSink(nil, "", "r").Topic("a"))
}

func TestMQTTSink_Close(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)
	s := NewMQTTSink(c, "p", "r")
	require.NoError(t, s.AddScalar("a", 1, 0))
	require.NoError(t, s.Close())

	msgs := c.GetPublishedMessages()
	require.Len(t, msgs, 2)
	status := msgs[1]
	assert.Equal(t, "p/r/status", status.Topic)
	assert.True(t, status.Retain)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(status.Payload, &got))
	assert.Equal(t, float64(1), got["published"])
	assert.False(t, c.IsConnected())

	// Closing a disconnected sink is a no-op.
	assert.NoError(t, s.Close())
}
