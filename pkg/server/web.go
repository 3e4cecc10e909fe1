package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Version is the server release version.
const Version = "0.1.0"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and runs the session pumps. All room and
// player binding happens through websocket messages, not the URL.
func (s *Server) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warnf("websocket upgrade: %v", err)
			return
		}

		c := &session{
			server:   s,
			conn:     conn,
			send:     make(chan []byte, 32),
			playerID: newPlayerID(),
		}

		s.log.Debugf("session %s connected from %s", c.playerID, r.RemoteAddr)

		go c.writePump()
		c.readPump()
	}
}

// serveQR generates a PNG QR code with the join link for a room, so a phone
// can scan straight into the lobby.
func (s *Server) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if _, err := s.registry.LookupRoom(code); err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + "/?join=" + code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func (s *Server) serveVersion() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ridebussrv v" + Version + "\n"))
	}
}

// Router builds the route table under the given prefix.
func (s *Server) Router(prefix string) *httprouter.Router {
	mux := httprouter.New()

	mux.GET(prefix+"/ws", s.serveWS())
	mux.GET(prefix+"/rooms/:code/qr", s.serveQR())
	mux.GET(prefix+"/version", s.serveVersion())

	return mux
}

// ListenAndServe runs the HTTP front until the context is cancelled. Read
// and write timeouts are left unset so websocket sessions can live as long
// as the game does.
func (s *Server) ListenAndServe(ctx context.Context, bind string, port int, prefix string) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(bind, strconv.Itoa(port)),
		Handler:           s.Router(prefix),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Infof("listening on http://%s%s/", srv.Addr, prefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
