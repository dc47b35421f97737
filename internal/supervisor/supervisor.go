// Package supervisor keeps the shared media-platform credential alive and
// tells an administrator when it cannot.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"client-delivery-backend/internal/credentials"
	"client-delivery-backend/internal/models"

	"github.com/robfig/cron/v3"
)

const (
	TierWeek = "7-day"
	TierDay  = "1-day"

	keyDisconnected = "disconnected"

	checkTimeout = 2 * time.Minute
)

type AlertKind string

const (
	AlertDisconnected  AlertKind = "disconnected"
	AlertRefreshFailed AlertKind = "refresh_failed"
	AlertExpiringSoon  AlertKind = "expiring_soon"
)

// Alert is handed to the Alerter once per dedup key.
type Alert struct {
	Kind      AlertKind
	Key       string
	Service   string
	Tier      string
	Reason    string
	AuthURL   string
	ExpiresAt time.Time
	Remaining time.Duration
}

type Alerter interface {
	AlertAdmin(ctx context.Context, alert Alert) error
}

// CredentialProvider is the subset of credentials.Provider the supervisor drives.
type CredentialProvider interface {
	Service() string
	Status(ctx context.Context) (credentials.Status, error)
	Refresh(ctx context.Context) (*models.ServiceToken, error)
	AuthURL(ctx context.Context) (string, error)
}

// CheckResult describes one supervision pass.
type CheckResult struct {
	State     credentials.State
	Refreshed bool
	AlertKey  string
	Alerted   bool
	Err       error
}

type Supervisor struct {
	provider     CredentialProvider
	alerter      Alerter
	logger       *slog.Logger
	interval     time.Duration
	initialDelay time.Duration

	mu     sync.Mutex
	alerts map[string]struct{}
}

func New(provider CredentialProvider, alerter Alerter, interval, initialDelay time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		provider:     provider,
		alerter:      alerter,
		logger:       logger.With("component", "token_supervisor", "service", provider.Service()),
		interval:     interval,
		initialDelay: initialDelay,
		alerts:       make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled. The first check happens after the
// initial delay; later checks follow the cron schedule and never overlap.
func (s *Supervisor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule token supervisor: %w", err)
	}

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	s.RunOnce(ctx)
	c.Start()
	s.logger.Info("token supervisor started", "interval", s.interval.String())

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("token supervisor stopped")
	return nil
}

// RunOnce classifies the credential and acts on it. It never panics the
// caller and reports what it did.
func (s *Supervisor) RunOnce(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st, err := s.provider.Status(ctx)
	if err != nil {
		s.logger.Error("failed to read token status", "error", err)
		return CheckResult{Err: err}
	}
	res := CheckResult{State: st.State}

	switch st.State {
	case credentials.StateDisconnected:
		res.AlertKey = keyDisconnected
		res.Alerted, res.Err = s.alertOnce(ctx, keyDisconnected, func() (Alert, error) {
			authURL, err := s.provider.AuthURL(ctx)
			if err != nil {
				return Alert{}, err
			}
			return Alert{Kind: AlertDisconnected, AuthURL: authURL}, nil
		})

	case credentials.StateExpired:
		if _, err := s.provider.Refresh(ctx); err != nil {
			res.Err = err
			res.AlertKey = "expired:" + err.Error()
			s.logger.Warn("expired token refresh failed", "error", err)
			res.Alerted, _ = s.alertOnce(ctx, res.AlertKey, func() (Alert, error) {
				return Alert{
					Kind:      AlertRefreshFailed,
					Reason:    err.Error(),
					ExpiresAt: st.ExpiresAt,
					AuthURL:   s.reconnectURL(ctx),
				}, nil
			})
			return res
		}
		res.Refreshed = true
		s.clearAlerts()

	case credentials.StateExpiringSoon:
		if _, err := s.provider.Refresh(ctx); err != nil {
			tier := TierWeek
			if st.Remaining <= 24*time.Hour {
				tier = TierDay
			}
			res.Err = err
			res.AlertKey = "expiring:" + tier
			s.logger.Warn("proactive token refresh failed", "error", err, "tier", tier, "remaining", st.Remaining.String())
			res.Alerted, _ = s.alertOnce(ctx, res.AlertKey, func() (Alert, error) {
				alert := Alert{
					Kind:      AlertExpiringSoon,
					Tier:      tier,
					Reason:    err.Error(),
					ExpiresAt: st.ExpiresAt,
					Remaining: st.Remaining,
				}
				if tier == TierDay {
					alert.AuthURL = s.reconnectURL(ctx)
				}
				return alert, nil
			})
			return res
		}
		res.Refreshed = true
		s.clearAlerts()

	case credentials.StateHealthy:
		if _, err := s.provider.Refresh(ctx); err != nil {
			res.Err = err
			s.logger.Warn("proactive token refresh failed", "error", err)
			return res
		}
		res.Refreshed = true
		s.clearAlerts()
	}

	if res.Refreshed {
		s.logger.Info("token refreshed", "previous_state", string(st.State))
	}
	return res
}

// alertOnce sends the alert built by build unless key was already sent since
// the last successful refresh. A failed send is retried on the next pass.
func (s *Supervisor) alertOnce(ctx context.Context, key string, build func() (Alert, error)) (bool, error) {
	s.mu.Lock()
	_, sent := s.alerts[key]
	s.mu.Unlock()
	if sent {
		return false, nil
	}

	alert, err := build()
	if err != nil {
		s.logger.Error("failed to prepare admin alert", "key", key, "error", err)
		return false, err
	}
	alert.Key = key
	alert.Service = s.provider.Service()

	if err := s.alerter.AlertAdmin(ctx, alert); err != nil {
		s.logger.Error("failed to alert admin", "key", key, "error", err)
		return false, err
	}

	s.mu.Lock()
	s.alerts[key] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("admin alerted", "key", key)
	return true, nil
}

// reconnectURL mints a consent URL for alerts that may need a human to
// reconnect. The alert still goes out without one.
func (s *Supervisor) reconnectURL(ctx context.Context) string {
	authURL, err := s.provider.AuthURL(ctx)
	if err != nil {
		s.logger.Warn("failed to build authorization URL for alert", "error", err)
		return ""
	}
	return authURL
}

func (s *Supervisor) clearAlerts() {
	s.mu.Lock()
	s.alerts = make(map[string]struct{})
	s.mu.Unlock()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
