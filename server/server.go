package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"policyiter/models"
	"policyiter/reinforcement"
	"policyiter/server/cell_views"
	"policyiter/server/fastview"
	"policyiter/server/root_view"

	"github.com/gorilla/mux"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves a single page showing a grid world's values and policy, updated live
// over a websocket as policy iteration progresses. The page's update stream can be
// consumed by one websocket client at a time.
type Server struct {
	addr     string
	logger   *log.Logger
	router   *mux.Router
	rootView *root_view.RootView
	convert  func(reinforcement.Progress) cell_views.Frame

	mu sync.Mutex
	// last is the latest frame, with which the index page is rendered.
	last cell_views.Frame
	// progress holds at most the latest unconsumed progress.
	progress chan reinforcement.Progress
}

// NewServer initializes the views of grid and returns a server.
func NewServer(
	ctx context.Context,
	addr string,
	grid *models.GridWorld,
	logger *log.Logger,
) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	progress := make(chan reinforcement.Progress, 1)
	rootView, err := root_view.NewRootView(ctx, grid, progress)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	srv := &Server{
		addr:     addr,
		logger:   logger,
		rootView: rootView,
		convert:  cell_views.Converter(grid),
		last:     cell_views.InitialFrame(grid),
		progress: progress,
	}
	srv.router = mux.NewRouter()
	srv.router.HandleFunc("/", srv.serveIndex).Methods(http.MethodGet)
	srv.router.HandleFunc("/ws", srv.serveWebsocket)
	return srv, nil
}

// Handler returns the server's routes.
func (srv *Server) Handler() http.Handler {
	return srv.router
}

// Publish is a reinforcement.ProgressFunc. It never blocks the solver: progress that
// has not yet been consumed by the views is replaced by the newer one.
func (srv *Server) Publish(_ context.Context, p reinforcement.Progress) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.last = srv.convert(p)
	select {
	case <-srv.progress:
	default:
	}
	// Publish is the only sender and holds the lock, so the buffer has room.
	srv.progress <- p
}

// Serve listens on the server's address until ctx is cancelled.
func (srv *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              srv.addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()
	srv.logger.Printf("Serving policy iteration view at http://%s/", srv.addr)

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes view updates to the client via websocket.
func (srv *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(srv.rootView.Updates(), w, r)
	if err != nil {
		srv.logger.Println("upgrade:", err)
		return
	}
	if err := cli.Sync(); err != nil {
		srv.logger.Println("websocket:", err)
	}
}

// serveIndex serves the main page, rendered with the latest frame.
func (srv *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	srv.mu.Lock()
	frame := srv.last
	srv.mu.Unlock()

	page := &bytes.Buffer{}
	if err := renderTemplate(page, srv.rootView, frame); err != nil {
		srv.logger.Println("render index:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = page.WriteTo(w)
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
