package remoteconfig

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecowatt/gateway/internal/acquisition"
	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/ecowatt/gateway/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	cfg acquisition.Config
}

func (f *fakeScheduler) Config() acquisition.Config         { return f.cfg }
func (f *fakeScheduler) SetPollingInterval(d time.Duration) { f.cfg.PollingInterval = d }
func (f *fakeScheduler) SetMinimumRegisters(addrs []uint8)  { f.cfg.MinimumRegisters = addrs }

func defaultTable() *registry.Holder {
	return registry.NewHolder(registry.NewTable(registry.DefaultInverterRegisters()))
}

func TestPull_AppliesIntervalAndRegisters(t *testing.T) {
	var ackBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/inverter/config":
			_, _ = w.Write([]byte(`{"nonce":7,"config_update":{"sampling_interval":10,"registers":["voltage","current","bogus"]}}`))
		case "/api/inverter/config/ack":
			body, _ := io.ReadAll(r.Body)
			ackBody = body
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	sched := &fakeScheduler{cfg: acquisition.Config{
		PollingInterval:  5000 * time.Millisecond,
		MinimumRegisters: []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	}}

	h := New(httpclient.New(), server.URL, defaultTable(), sched)

	var updated bool
	h.OnUpdate(func() { updated = true })

	h.Pull(context.Background())

	assert.Equal(t, 10*time.Second, sched.cfg.PollingInterval)
	assert.True(t, updated)

	var ack Ack
	require.NoError(t, json.Unmarshal(ackBody, &ack))
	assert.EqualValues(t, 7, ack.Nonce)
	assert.True(t, ack.AllSuccess)
	require.Len(t, ack.ConfigAck.Accepted, 1)
	assert.Equal(t, "sampling_interval", ack.ConfigAck.Accepted[0].Parameter)
	require.Len(t, ack.ConfigAck.Unchanged, 1)
	assert.Equal(t, "registers", ack.ConfigAck.Unchanged[0].Parameter)
}

func TestPull_OutOfBoundsIntervalIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/inverter/config" {
			_, _ = w.Write([]byte(`{"nonce":1,"config_update":{"sampling_interval":7200}}`))
		}
	}))
	defer server.Close()

	sched := &fakeScheduler{cfg: acquisition.Config{PollingInterval: 5 * time.Second}}
	h := New(httpclient.New(), server.URL, defaultTable(), sched)

	h.Pull(context.Background())

	assert.Equal(t, 5*time.Second, sched.cfg.PollingInterval)
}

func TestPull_NoConfigUpdateIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	sched := &fakeScheduler{cfg: acquisition.Config{PollingInterval: 5 * time.Second}}
	h := New(httpclient.New(), server.URL, defaultTable(), sched)

	h.Pull(context.Background())

	assert.Equal(t, 5*time.Second, sched.cfg.PollingInterval)
}

func TestResolveRegisters_DropsUnknownNames(t *testing.T) {
	table := registry.NewTable(registry.DefaultInverterRegisters())
	raw := []json.RawMessage{
		json.RawMessage(`"voltage"`),
		json.RawMessage(`"bogus"`),
		json.RawMessage(`2`),
	}

	resolved := resolveRegisters(raw, table)
	assert.ElementsMatch(t, []uint8{0, 2}, resolved)
}

func TestResolveRegisters_DropsUnknownAddresses(t *testing.T) {
	table := registry.NewTable(registry.DefaultInverterRegisters())
	raw := []json.RawMessage{
		json.RawMessage(`1`),
		json.RawMessage(`250`),
	}

	resolved := resolveRegisters(raw, table)
	assert.ElementsMatch(t, []uint8{1}, resolved)
}
