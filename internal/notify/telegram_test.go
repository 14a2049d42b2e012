package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	type sent struct {
		path string
		body map[string]any
	}
	var got []sent

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, sent{path: r.URL.Path, body: body})
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tg := NewTelegram("secret-token", ts.URL)

	t.Run("task assignment", func(t *testing.T) {
		require.NoError(t, tg.NewTaskAssigned(context.Background(), 42, "ship it", false))
		last := got[len(got)-1]
		assert.Equal(t, "/botsecret-token/sendMessage", last.path)
		assert.Equal(t, float64(42), last.body["chat_id"])
		assert.Contains(t, last.body["text"], "ship it")
		assert.NotContains(t, last.body["text"], "top-priority")
	})

	t.Run("top priority template", func(t *testing.T) {
		require.NoError(t, tg.NewTaskAssigned(context.Background(), 42, "fire", true))
		assert.Contains(t, got[len(got)-1].body["text"], "top-priority")
	})

	t.Run("registration request", func(t *testing.T) {
		require.NoError(t, tg.RegistrationRequest(context.Background(), 1, "newbie", 555))
		last := got[len(got)-1]
		assert.Equal(t, float64(1), last.body["chat_id"])
		assert.Contains(t, last.body["text"], "newbie")
		assert.Contains(t, last.body["text"], "555")
	})
}

func TestTelegramSendError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	tg := NewTelegram("tok", ts.URL)
	err := tg.NewTaskAssigned(context.Background(), 42, "x", false)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.NewTaskAssigned(context.Background(), 1, "x", true))
	assert.NoError(t, Nop{}.RegistrationRequest(context.Background(), 1, "x", 2))
}
