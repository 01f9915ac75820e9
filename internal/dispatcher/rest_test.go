package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-nukeguard/internal/cleanup"
	"go-nukeguard/internal/punish"
)

type recorded struct {
	method string
	path   string
	reason string
	auth   string
}

func newTestServer(t *testing.T, status int, header http.Header, body string) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*calls = append(*calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			reason: r.Header.Get("X-Audit-Log-Reason"),
			auth:   r.Header.Get("Authorization"),
		})
		mu.Unlock()
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", NewPool(1), zap.NewNop()), calls
}

func TestBanSendsReasonAndAuth(t *testing.T) {
	client, calls := newTestServer(t, http.StatusNoContent, nil, "")

	err := client.Ban(context.Background(), 10, 42, "mass ban threshold exceeded")

	require.NoError(t, err)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/guilds/10/bans/42", call.path)
	assert.Equal(t, "mass ban threshold exceeded", call.reason)
	assert.Equal(t, "Bot test-token", call.auth)
}

func TestForbiddenClassifiesAsDenied(t *testing.T) {
	client, _ := newTestServer(t, http.StatusForbidden, nil, "")

	err := client.Kick(context.Background(), 10, 42, "r")

	require.Error(t, err)
	class, _ := punish.Classify(err)
	assert.Equal(t, punish.ClassDenied, class)
}

func TestNotFoundClassifiesGracefully(t *testing.T) {
	client, _ := newTestServer(t, http.StatusNotFound, nil, "")

	err := client.Unban(context.Background(), 10, 42, "r")

	class, _ := punish.Classify(err)
	assert.Equal(t, punish.ClassNotFound, class)
}

func TestTooManyRequestsCarriesHeaderRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2.5")
	client, _ := newTestServer(t, http.StatusTooManyRequests, h, "")

	err := client.StripRoles(context.Background(), 10, 42, "r")

	class, retryAfter := punish.Classify(err)
	assert.Equal(t, punish.ClassTransient, class)
	assert.Equal(t, 2500*time.Millisecond, retryAfter)
}

func TestTooManyRequestsFallsBackToBodyRetryAfter(t *testing.T) {
	client, _ := newTestServer(t, http.StatusTooManyRequests, nil, `{"retry_after": 1.25}`)

	err := client.Ban(context.Background(), 10, 42, "r")

	_, retryAfter := punish.Classify(err)
	assert.Equal(t, 1250*time.Millisecond, retryAfter)
}

func TestTransportFailureClassifiesTransient(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "t", NewPool(1), zap.NewNop())

	err := client.Ban(context.Background(), 10, 42, "r")

	require.Error(t, err)
	class, _ := punish.Classify(err)
	assert.Equal(t, punish.ClassTransient, class)
}

func TestDeleteObjectRoutesByKind(t *testing.T) {
	client, calls := newTestServer(t, http.StatusNoContent, nil, "")
	ctx := context.Background()

	require.NoError(t, client.DeleteObject(ctx, 10, 7, cleanup.ObjectChannel, "r"))
	require.NoError(t, client.DeleteObject(ctx, 10, 8, cleanup.ObjectRole, "r"))
	require.NoError(t, client.DeleteObject(ctx, 10, 9, cleanup.ObjectWebhook, "r"))

	require.Len(t, *calls, 3)
	assert.Equal(t, "/channels/7", (*calls)[0].path)
	assert.Equal(t, "/guilds/10/roles/8", (*calls)[1].path)
	assert.Equal(t, "/webhooks/9", (*calls)[2].path)
}

func TestRestoreObjectRecreatesFromSnapshot(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, nil, "{}")

	err := client.RestoreObject(context.Background(), 10, cleanup.Snapshot{
		TenantID: 10, ObjectID: 7, Kind: cleanup.ObjectChannel, Name: "general", Position: 2,
	}, "restoring deleted channel")

	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodPost, (*calls)[0].method)
	assert.Equal(t, "/guilds/10/channels", (*calls)[0].path)
}

func TestCancelledContextShortCircuits(t *testing.T) {
	client, calls := newTestServer(t, http.StatusNoContent, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Ban(ctx, 10, 42, "r")

	assert.Error(t, err)
	assert.Empty(t, *calls)
}
