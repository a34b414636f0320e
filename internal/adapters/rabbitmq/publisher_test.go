package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
)

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub, err := Encode(ports.RescanRequested{
		ScanID:      "scan-1",
		Kind:        domain.ScanRescan,
		Root:        "company.com",
		SubdomainID: "2",
		Target:      "api.company.com",
		RequestedAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "scan-1", pub.MessageId)
	assert.Equal(t, "rescan", pub.Type)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, at, pub.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(pub.Body, &body))
	assert.Equal(t, "api.company.com", body["target"])
	assert.Equal(t, "2", body["subdomain_id"])
}

func TestEncodeDiscoverOmitsSubdomain(t *testing.T) {
	pub, err := Encode(ports.RescanRequested{ScanID: "s", Kind: domain.ScanDiscover, Root: "company.com", Target: "company.com"})
	require.NoError(t, err)
	assert.NotContains(t, string(pub.Body), "subdomain_id")
	assert.False(t, pub.Timestamp.IsZero())
}
