// Package app wires the store, engines, broker, and gateway into one
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/xbiplob/WeFriend/internal/gateway"
	"github.com/xbiplob/WeFriend/internal/livequery"
	"github.com/xbiplob/WeFriend/internal/platform/blob"
	"github.com/xbiplob/WeFriend/internal/services/feed"
	"github.com/xbiplob/WeFriend/internal/services/messaging"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/services/presence"
	"github.com/xbiplob/WeFriend/internal/services/profile"
	"github.com/xbiplob/WeFriend/internal/services/social"
	"github.com/xbiplob/WeFriend/internal/session"
	"github.com/xbiplob/WeFriend/internal/storage"
	"github.com/xbiplob/WeFriend/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Options configures the server process.
type Options struct {
	Addr        string
	DBPath      string
	TokenSecret []byte
	BlobBaseURL string
}

// Server is the assembled process.
type Server struct {
	store   *sqlite.Store
	handler http.Handler
	sweep   func(ctx context.Context)
	addr    string
}

// New opens the store and wires every engine.
func New(opts Options) (*Server, error) {
	store, err := sqlite.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	verifier, err := session.NewVerifier(opts.TokenSecret)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("session verifier: %w", err)
	}

	server, err := assemble(store, verifier, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return server, nil
}

func assemble(store *sqlite.Store, verifier *session.Verifier, opts Options) (*Server, error) {
	broker := livequery.NewBroker()
	uploader := blob.NewMemoryStore(opts.BlobBaseURL)

	var full storage.Store = store
	notifySvc := notifications.NewService(full, broker, nil)
	profileSvc := profile.NewService(full, broker, nil)
	socialSvc := social.NewService(full, profileSvc, notifySvc, broker, nil)
	presenceSvc := presence.NewService(full, socialSvc, broker, nil)
	messagingSvc := messaging.NewService(full, socialSvc, notifySvc, broker, nil)
	feedSvc := feed.NewService(full, socialSvc, profileSvc, notifySvc, uploader, broker, nil)

	handler := gateway.NewHandler(gateway.Deps{
		Authorizer:    verifier,
		Profiles:      profileSvc,
		Presence:      presenceSvc,
		Social:        socialSvc,
		Messaging:     messagingSvc,
		Feed:          feedSvc,
		Notifications: notifySvc,
		Broker:        broker,
	})

	return &Server{
		store:   store,
		handler: handler,
		sweep:   func(ctx context.Context) { presenceSvc.RunSweeper(ctx, 0) },
		addr:    opts.Addr,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweep(sweepCtx)

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("gateway listening on %s", s.addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
