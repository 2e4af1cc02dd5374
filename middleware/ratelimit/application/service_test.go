package application

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"notes-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
)

type fakePolicy struct {
	dec   domain.Decision
	err   error
	panic any
}

func (f fakePolicy) Decide(domain.Key, time.Time) (domain.Decision, error) {
	if f.panic != nil {
		panic(f.panic)
	}
	return f.dec, f.err
}

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestService_Decide_AllowsWhenNoPolicy(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k", t0)
	assert.True(t, dec.Allowed)
	assert.Zero(t, dec.RetryAfter, "expected RetryAfter=0 when allowed")
}

func TestService_Decide_AllowsWhenPolicyAllows(t *testing.T) {
	svc := Service{Policy: fakePolicy{dec: domain.Decision{Allowed: true, Limit: 3, Remaining: 2}}}
	dec := svc.Decide("k", t0)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Remaining)
	assert.False(t, dec.Degraded)
}

func TestService_Decide_KeepsPolicyRetryAfter(t *testing.T) {
	svc := Service{Policy: fakePolicy{dec: domain.Decision{RetryAfter: 400 * time.Millisecond}}}
	dec := svc.Decide("k", t0)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 400*time.Millisecond, dec.RetryAfter)
}

func TestService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	svc := Service{Policy: fakePolicy{dec: domain.Decision{Allowed: false}}}
	dec := svc.Decide("k", t0)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 1*time.Second, dec.RetryAfter)
}

func TestService_Decide_BlocksWithConfiguredRetryAfter(t *testing.T) {
	svc := Service{Policy: fakePolicy{dec: domain.Decision{Allowed: false}}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k", t0)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 2500*time.Millisecond, dec.RetryAfter)
}

func TestService_Decide_FailsOpenOnError(t *testing.T) {
	logger, buf := quietLogger()
	svc := Service{Policy: fakePolicy{err: errors.New("store unavailable")}, Logger: logger}

	dec := svc.Decide("10.0.0.1", t0)
	assert.True(t, dec.Allowed)
	assert.True(t, dec.Degraded)
	assert.Contains(t, buf.String(), "store unavailable")
	assert.Contains(t, buf.String(), "10.0.0.1")
}

func TestService_Decide_FailsClosedWhenConfigured(t *testing.T) {
	logger, _ := quietLogger()
	svc := Service{Policy: fakePolicy{err: domain.ErrNoStore}, FailClosed: true, Logger: logger}

	dec := svc.Decide("k", t0)
	assert.False(t, dec.Allowed)
	assert.True(t, dec.Degraded)
	assert.Equal(t, time.Second, dec.RetryAfter)
}

func TestService_Decide_RecoversFromPolicyPanic(t *testing.T) {
	logger, buf := quietLogger()
	svc := Service{Policy: fakePolicy{panic: "corrupted record"}, Logger: logger}

	var dec domain.Decision
	assert.NotPanics(t, func() { dec = svc.Decide("k", t0) })
	assert.True(t, dec.Allowed)
	assert.True(t, dec.Degraded)
	assert.Contains(t, buf.String(), "corrupted record")
}
