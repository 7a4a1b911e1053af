package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/model"
)

var receivedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeNotification(t *testing.T) {
	raw := `{"type":"notification","data":{"id":"n1","type":"new_order","title":"New order","message":"Order #42","priority":"urgent","timestamp":"2024-05-01T11:59:00.250Z","expiresAt":"2024-05-02T00:00:00Z","metadata":{"orderId":"42"},"unknown":1}}`

	f, err := Decode([]byte(raw), receivedAt)
	require.NoError(t, err)
	require.Equal(t, KindNotification, f.Kind())

	n := f.(NotificationFrame).Notification
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, model.TypeNewOrder, n.Type)
	assert.Equal(t, model.PriorityUrgent, n.Priority)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 59, 0, 250_000_000, time.UTC), n.Timestamp)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, "42", n.SubjectID())
	assert.True(t, f.(NotificationFrame).Stamped)
}

func TestDecodeNotificationDefaults(t *testing.T) {
	f, err := Decode([]byte(`{"type":"notification","data":{"title":"Hello","priority":"bogus"}}`), receivedAt)
	require.NoError(t, err)

	n := f.(NotificationFrame).Notification
	assert.Empty(t, n.ID)
	assert.Equal(t, model.TypeSystem, n.Type)
	assert.Equal(t, model.PriorityNormal, n.Priority)
	assert.Equal(t, receivedAt, n.Timestamp)
	assert.False(t, f.(NotificationFrame).Stamped)
	assert.Nil(t, n.ExpiresAt)
}

func TestDecodeHeartbeatAck(t *testing.T) {
	for _, raw := range []string{
		`{"type":"pong"}`,
		`{"type":"heartbeat-ack","timestamp":"2024-05-01T12:00:00Z"}`,
	} {
		f, err := Decode([]byte(raw), receivedAt)
		require.NoError(t, err, raw)
		assert.Equal(t, KindHeartbeatAck, f.Kind(), raw)
	}
}

func TestDecodeErrorAndUnknown(t *testing.T) {
	f, err := Decode([]byte(`{"type":"error","error":"rate limited"}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, ErrorFrame{Message: "rate limited"}, f)

	f, err = Decode([]byte(`{"type":"error","message":"bad token"}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, ErrorFrame{Message: "bad token"}, f)

	f, err = Decode([]byte(`{"type":"presence","data":{}}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, UnknownFrame{Type: "presence"}, f)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"missing type":    `{"data":{}}`,
		"no data":         `{"type":"notification"}`,
		"null data":       `{"type":"notification","data":null}`,
		"data not object": `{"type":"notification","data":"x"}`,
		"empty payload":   `{"type":"notification","data":{"id":"n"}}`,
		"bad timestamp":   `{"type":"notification","data":{"title":"t","timestamp":"yesterday"}}`,
		"bad expiry":      `{"type":"notification","data":{"title":"t","expiresAt":"soon"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw), receivedAt)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
