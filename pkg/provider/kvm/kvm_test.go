package kvm

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func testHost() *types.Resource {
	return &types.Resource{
		ID:         "host-1",
		Type:       types.ResourceTypeHost,
		SubType:    "KVM",
		Address:    "127.0.0.1",
		OOBAddress: "bmc-1",
	}
}

func TestIsEligible(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		mutate   func(r *types.Resource)
		eligible bool
	}{
		{name: "kvm host", mutate: func(r *types.Resource) {}, eligible: true},
		{name: "lowercase subtype", mutate: func(r *types.Resource) { r.SubType = "kvm" }, eligible: true},
		{name: "other hypervisor", mutate: func(r *types.Resource) { r.SubType = "VMware" }, eligible: false},
		{name: "removed", mutate: func(r *types.Resource) { r.Removed = true }, eligible: false},
		{name: "no oob address", mutate: func(r *types.Resource) { r.OOBAddress = "" }, eligible: false},
		{name: "not a host", mutate: func(r *types.Resource) { r.Type = "Volume" }, eligible: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testHost()
			tt.mutate(r)
			assert.Equal(t, tt.eligible, p.IsEligible(r))
		})
	}
	assert.False(t, p.IsEligible(nil))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Driver: "telnet"})
	assert.Error(t, err)

	_, err = New(Config{Params: provider.Params{ActivityCheckFailureRatio: 1.5}})
	assert.Error(t, err)

	p, err := New(Config{Params: provider.Params{MaxRecoveryAttempts: 2}})
	require.NoError(t, err)
	params := p.Params(testHost())
	assert.Equal(t, 2, params.MaxRecoveryAttempts)
	assert.Equal(t, 10, params.MaxActivityChecks)
}

func TestIsHealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	_, port := splitHostPort(t, ln.Addr().String())

	p, err := New(Config{AgentPort: port})
	require.NoError(t, err)

	healthy, err := p.IsHealthy(context.Background(), testHost())
	require.NoError(t, err)
	assert.True(t, healthy)

	require.NoError(t, ln.Close())
	healthy, err = p.IsHealthy(context.Background(), testHost())
	require.NoError(t, err)
	assert.False(t, healthy)
}

func TestHasActivity(t *testing.T) {
	var active atomic.Bool
	var gotSince atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince.Store(r.URL.Query().Get("since"))
		if active.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, port := splitHostPort(t, strings.TrimPrefix(server.URL, "http://"))
	p, err := New(Config{ActivityPort: port})
	require.NoError(t, err)

	since := time.Unix(1700000000, 0)
	active.Store(true)
	got, err := p.HasActivity(context.Background(), testHost(), since)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "1700000000", gotSince.Load())

	active.Store(false)
	got, err = p.HasActivity(context.Background(), testHost(), since)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestRedfishPowerActions(t *testing.T) {
	var mu sync.Mutex
	var resets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/redfish/v1/Systems/1/Actions/ComputerSystem.Reset" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		user, pass, _ := r.BasicAuth()
		if user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		resets = append(resets, body["ResetType"])
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p, err := New(Config{OOBUsername: "admin", OOBPassword: "secret"})
	require.NoError(t, err)

	host := testHost()
	host.OOBAddress = server.URL

	ok, err := p.Recover(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Fence(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, ok)

	mu.Lock()
	assert.Equal(t, []string{"ForceRestart", "ForceOff"}, resets)
	mu.Unlock()

	// Wrong credentials are a failed action, not an error
	bad, err := New(Config{OOBUsername: "admin", OOBPassword: "wrong"})
	require.NoError(t, err)
	ok, err = bad.Fence(context.Background(), host)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPowerActionDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p, err := New(Config{})
	require.NoError(t, err)
	host := testHost()
	host.OOBAddress = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok, err := p.Recover(ctx, host)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFenceSubResources(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.NoError(t, p.FenceSubResources(context.Background(), testHost()))

	notified := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		notified <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p, err = New(Config{FenceNotifyURL: server.URL})
	require.NoError(t, err)
	require.NoError(t, p.FenceSubResources(context.Background(), testHost()))
	assert.Equal(t, "host-1", (<-notified)["resourceId"])
}

func TestProviderIdentity(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	var _ provider.HAProvider = p
	assert.Equal(t, "kvmhaprovider", p.Name())
	assert.Equal(t, types.ResourceTypeHost, p.ResourceType())
	assert.Equal(t, "KVM", p.ResourceSubType())
}
