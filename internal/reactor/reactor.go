// Package reactor logs in to the Puzzle API and reacts to project and product updates.
package reactor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/poohvpn/puzzle"
	"github.com/poohvpn/puzzle/internal/config"
	"github.com/poohvpn/puzzle/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SubscriptionProjects = "projects"
	SubscriptionProducts = "products"
)

// ErrLoginFailed is returned by Run when the login did not succeed.
var ErrLoginFailed = errors.New("login failed")

// Option of New, every field is optional
type Option struct {
	Logger     *zap.Logger
	Metrics    *metrics.Collector
	HTTPClient *http.Client

	// OnEvent is called for every data message, after it has been logged
	OnEvent func(subscription string, data json.RawMessage)
}

type Reactor struct {
	*Option

	cfg     *config.Config
	session *puzzle.Session
}

type subscribeFunc func(ctx context.Context, opts ...puzzle.SubscribeOption) (*puzzle.Subscription, error)

// New only take the first Option if given
func New(cfg *config.Config, opt ...*Option) (*Reactor, error) {
	r := &Reactor{
		Option: &Option{},
		cfg:    cfg,
	}
	if len(opt) > 0 && opt[0] != nil {
		r.Option = opt[0]
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Metrics == nil {
		r.Metrics = metrics.NewCollector()
	}

	session, err := puzzle.NewSession(cfg.API, &puzzle.SessionOption{
		HTTPClient: r.HTTPClient,
		WSOrigin:   cfg.WSOrigin,
		Logger:     r.Logger.Named("puzzle"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new puzzle session")
	}
	r.session = session
	return r, nil
}

// Session is the authenticated session shared by both subscriptions.
func (r *Reactor) Session() *puzzle.Session {
	return r.session
}

// Login authenticates with the configured credentials. The session cookie it obtains is
// used by every later query and subscription.
func (r *Reactor) Login(ctx context.Context) bool {
	creds := r.cfg.Credentials
	ok, err := r.session.Login(ctx, puzzle.LoginInput{
		DomainName: creds.Domain,
		Username:   creds.Username,
		Password:   creds.Password,
	})
	r.Metrics.RecordLogin(ok && err == nil)

	httpErr := &puzzle.HTTPError{}
	switch {
	case errors.Is(err, puzzle.ErrMissingCredentials):
		r.Logger.Error("login failed: missing credentials")
		return false
	case errors.As(err, &httpErr):
		r.Logger.Error("login failed",
			zap.Int("status", httpErr.Response.StatusCode),
			zap.String("response", httpErr.SavedBody))
		return false
	case err != nil:
		r.Logger.Error("login failed", zap.Error(err))
		return false
	case !ok:
		r.Logger.Error("login failed")
		return false
	}
	r.Logger.Info("login successful")
	return true
}

// FetchProjects returns the active projects, or nothing when the query fails.
func (r *Reactor) FetchProjects(ctx context.Context) []puzzle.Project {
	projects, err := r.session.GetProjects(ctx)
	r.Metrics.RecordQuery("GetProjects", err == nil)
	if err != nil {
		httpErr := &puzzle.HTTPError{}
		if errors.As(err, &httpErr) {
			r.Logger.Error("error fetching projects", zap.String("response", httpErr.SavedBody))
		} else {
			r.Logger.Error("error fetching projects", zap.Error(err))
		}
		return []puzzle.Project{}
	}
	return puzzle.ActiveProjects(projects)
}

// Run logs in and then consumes both subscriptions until they end or ctx is cancelled.
// A failing subscription cancels the other one.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.Login(ctx) {
		return ErrLoginFailed
	}

	if r.cfg.FetchProjects {
		for _, p := range r.FetchProjects(ctx) {
			r.Logger.Info("processing project", zap.String("id", p.ID), zap.String("title", p.Title))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.consume(ctx, SubscriptionProjects, r.session.OnProjectsUpdated)
	})
	g.Go(func() error {
		return r.consume(ctx, SubscriptionProducts, r.session.OnProductsUpdated)
	})
	return g.Wait()
}

// consume runs one subscription, and opens it again when resubscribing is enabled.
func (r *Reactor) consume(ctx context.Context, name string, subscribe subscribeFunc) error {
	var b *backoff.Backoff
	rc := r.cfg.Resubscribe
	if rc.Enabled {
		b = &backoff.Backoff{
			Min:    rc.MinDelay,
			Max:    rc.MaxDelay,
			Factor: rc.Factor,
		}
	}
	logger := r.Logger.With(zap.String("subscription", name))

	for {
		err := r.subscribeOnce(ctx, name, subscribe, logger)
		if ctx.Err() != nil {
			return nil
		}
		if b == nil || b.Attempt() >= float64(rc.MaxAttempts) {
			return err
		}
		delay := b.Duration()
		logger.Warn("subscription ended, resubscribing", zap.Error(err), zap.Duration("delay", delay))
		r.Metrics.RecordResubscribe(name)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (r *Reactor) subscribeOnce(ctx context.Context, name string, subscribe subscribeFunc, logger *zap.Logger) error {
	sub, err := subscribe(ctx)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", name)
	}
	defer sub.Close()
	r.Metrics.SubscriptionStarted(name)
	logger.Info("subscribed", zap.String("id", sub.ID()))

	for data := range sub.Messages() {
		r.Metrics.RecordMessage(name)
		logger.Info(name+" updated", zap.Reflect("event", data))
		if r.OnEvent != nil {
			r.OnEvent(name, data)
		}
	}

	err = sub.Err()
	reason := "complete"
	switch {
	case ctx.Err() != nil:
		reason = "cancelled"
	case err != nil:
		reason = "error"
	}
	r.Metrics.SubscriptionEnded(name, reason)
	logger.Info("subscription ended", zap.String("reason", reason), zap.Error(err))
	return errors.Wrapf(err, "subscription %s", name)
}
