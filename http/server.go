package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ShutdownTimeout is the time given to running requests to finish once the
// servers stop. Frame stream connections are hijacked and not waited for,
// they end with the context given to their handler.
var ShutdownTimeout = 5 * time.Second

// ListenAndServe binds the address of every server then serves them until
// the context is done or one of them fails. Nothing is served when an
// address cannot be bound. It returns the error of the first server that
// failed.
func ListenAndServe(ctx context.Context, servers ...*http.Server) error {
	listeners := make([]net.Listener, 0, len(servers))
	for _, s := range servers {
		l, err := net.Listen("tcp", s.Addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return errors.New("listening failed").
				WithTag("addr", s.Addr).
				Wrap(err)
		}
		listeners = append(listeners, l)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(servers))

	for i, s := range servers {
		wg.Add(1)

		go func(s *http.Server, l net.Listener) {
			defer wg.Done()

			addr := l.Addr().String()
			logs.WithTag("addr", addr).Info("starting server")

			switch err := s.Serve(l); err {
			case nil, http.ErrServerClosed:
				logs.WithTag("addr", addr).Info("stopping server")

			default:
				errs <- errors.New("server stopped").
					WithTag("addr", addr).
					Wrap(err)
				cancel()
			}
		}(s, listeners[i])
	}

	<-ctx.Done()
	shutdown(servers)
	wg.Wait()

	close(errs)
	return <-errs
}

func shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logs.Warn(errors.New("shutting down the server failed").
				WithTag("addr", s.Addr).
				Wrap(err))
		}
	}
}
