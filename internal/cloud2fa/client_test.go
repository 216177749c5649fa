package cloud2fa_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldposta/authproxy/internal/cloud2fa"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*cloud2fa.HTTPClient, func()) {
	t.Helper()

	server := httptest.NewServer(handler)
	log := logrus.NewEntry(logrus.New())
	client := cloud2fa.New(server.URL, "integration-key", "secret", time.Second, log)

	return client, server.Close
}

func TestVerifyTOTPSuccess(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/totp/verify", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Signature"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"valid": true})
	})
	defer closeFn()

	ok, err := client.VerifyTOTP(context.Background(), "alice", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyTOTPRejected(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"valid": false})
	})
	defer closeFn()

	ok, err := client.VerifyTOTP(context.Background(), "alice", "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendPushReturnsRequestID(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/push/send", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"requestId": "req-1"})
	})
	defer closeFn()

	id, err := client.SendPush(context.Background(), "alice", cloud2fa.PushMetadata{ServiceName: "radius"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)
}

func TestSendPushFailureReturnsEmptyID(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "no device enrolled"})
	})
	defer closeFn()

	id, err := client.SendPush(context.Background(), "alice", cloud2fa.PushMetadata{})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestAwaitPushApprovesAfterPending(t *testing.T) {
	polls := 0
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "pending"
		if polls >= 3 {
			status = "approved"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": status})
	})
	defer closeFn()

	client.WithPollInterval(time.Millisecond)

	status := client.AwaitPush(context.Background(), "req-1", time.Now().Add(time.Second))
	assert.Equal(t, cloud2fa.PushApproved, status)
	assert.GreaterOrEqual(t, polls, 3)
}

func TestAwaitPushExpiresAtDeadline(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "pending"})
	})
	defer closeFn()

	client.WithPollInterval(time.Millisecond)

	status := client.AwaitPush(context.Background(), "req-1", time.Now().Add(5*time.Millisecond))
	assert.Equal(t, cloud2fa.PushExpired, status)
}

func TestAwaitPushRetriesTransientErrors(t *testing.T) {
	attempts := 0
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "denied"})
	})
	defer closeFn()

	client.WithPollInterval(time.Millisecond)

	status := client.AwaitPush(context.Background(), "req-1", time.Now().Add(time.Second))
	assert.Equal(t, cloud2fa.PushDenied, status)
}
