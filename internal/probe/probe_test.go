package probe_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/probe"
	"github.com/railfield/tracksync/internal/transport"
)

func newProbe(endpoints ...transport.Endpoint) *probe.Probe {
	logger := events.NewTestLogger(events.DebugLevel, "json", &bytes.Buffer{})
	return probe.New(endpoints, config.ProbeConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	}, logger)
}

func TestCheckNowOnline(t *testing.T) {
	ep := transport.NewMockEndpoint("inventory", true)
	p := newProbe(ep)

	assert.True(t, p.CheckNow(context.Background()))
	assert.True(t, p.Online())
}

func TestCheckNowOffline(t *testing.T) {
	ep := transport.NewMockEndpoint("inventory", true)
	ep.PingError = &models.TransientNetworkError{Endpoint: "inventory", Err: errors.New("no route")}

	p := newProbe(ep)

	assert.False(t, p.CheckNow(context.Background()))
	assert.False(t, p.Online())
}

func TestAnyReachableEndpointCountsAsOnline(t *testing.T) {
	down := transport.NewMockEndpoint("inventory", true)
	down.PingError = errors.New("refused")
	up := transport.NewMockEndpoint("inspection", true)

	p := newProbe(down, up)
	assert.True(t, p.CheckNow(context.Background()))
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	ep := transport.NewMockEndpoint("inventory", true)
	p := newProbe(ep)

	sub := p.Subscribe()

	// Offline -> online transition.
	require.True(t, p.CheckNow(context.Background()))
	select {
	case online := <-sub:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected online notification")
	}

	// No transition, no notification.
	p.CheckNow(context.Background())
	select {
	case <-sub:
		t.Fatal("unexpected notification without transition")
	case <-time.After(20 * time.Millisecond):
	}

	// Online -> offline transition.
	ep.PingError = errors.New("link down")
	require.False(t, p.CheckNow(context.Background()))
	select {
	case online := <-sub:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected offline notification")
	}
}

func TestBackgroundLoop(t *testing.T) {
	ep := transport.NewMockEndpoint("inventory", true)
	p := newProbe(ep)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, p.Online, time.Second, 5*time.Millisecond)

	// The loop keeps probing on its interval.
	require.Eventually(t, func() bool {
		ep.PingError = errors.New("gone")
		return !p.Online()
	}, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	p := newProbe(transport.NewMockEndpoint("inventory", true))

	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
