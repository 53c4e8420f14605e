package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/backend"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/session"
	"github.com/platinummonkey/chartpay/pkg/storage"
)

// userSession is an opened session plus the resources backing it.
type userSession struct {
	*session.Session
	client *backend.Client
	store  storage.ActiveRequestStore
}

// release closes the local cache. The session itself stays valid; only
// logout closes it.
func (s *userSession) release() {
	s.store.Close()
}

func (a *App) newClient() (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL: a.Config.Client.BaseURL,
		Token:   a.Config.Client.Token,
		Timeout: a.Config.Client.Timeout,
		Logger:  a.Logger,
	})
}

// openSession resolves the token to a user and opens a session for it.
func (a *App) openSession(ctx context.Context) (*userSession, error) {
	if a.Config.Client.Token == "" {
		return nil, apperrors.Unauthorized("not logged in: run \"chartpay login\" and export CHARTPAY_TOKEN")
	}
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}
	profile, err := client.FetchProfile(ctx)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(a.Config.Client.Storage)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(profile.UserID, session.Deps{
		Backend:  client,
		Plans:    client,
		Profiles: client,
		Consumer: client,
		Store:    store,
		Notifier: printNotifier(a.Out),
		Logger:   a.Logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := sess.Open(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &userSession{Session: sess, client: client, store: store}, nil
}

func printNotifier(out io.Writer) payments.Notifier {
	return payments.NotifierFunc(func(ctx context.Context, n payments.Notification) {
		fmt.Fprintln(out, n.Message)
	})
}

// resolveID returns id, or the id of the cached request, or the backend's
// active request.
func (s *userSession) resolveID(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	cur, err := s.Payments().Active(ctx)
	if err != nil {
		return "", err
	}
	if cur != nil {
		return cur.ID, nil
	}
	remote, err := s.client.GetActivePaymentRequest(ctx)
	if err != nil {
		return "", s.Handle(ctx, err)
	}
	if remote == nil {
		return "", apperrors.NotFound("no payment request in progress")
	}
	return remote.ID, nil
}
