package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/bot"
	"github.com/DysphoDE/nerdquiz/internal/game"
	"github.com/DysphoDE/nerdquiz/internal/question"
	"github.com/DysphoDE/nerdquiz/internal/tts"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		_, _ = w.Write([]byte("nerdquiz v" + releaseVersion + "\n"))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and runs the client pumps. The socket
// starts unbound; create_room / join_room / reconnect attach it to a room.
func serveWS(manager *game.Manager, log *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.String("remote", realIP(r)), zap.Error(err))
			return
		}

		client := game.NewClient(conn)
		go client.WritePump()
		client.ReadPump(manager, log)
	}
}

// qrHandler serves a PNG QR code pointing at the join URL for a room.
func qrHandler(manager *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if manager.Get(code) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		path := strings.TrimSuffix(r.URL.Path, "/qr")
		url := scheme + "://" + r.Host + path

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

// addBotHandler lets developers drop a simulated player into a room.
// Registered only with --bots.
func addBotHandler(manager *game.Manager, log *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := manager.Get(ps.ByName("code"))
		if room == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		b, err := bot.Join(room, log)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "bot %s joined\n", b.Name())
	}
}

func newQuestionStore(cfg *Config, log *zap.Logger) (question.Store, error) {
	var file *question.FileStore
	if cfg.questions != "" {
		var err error
		file, err = question.LoadFile(cfg.questions)
		if err != nil {
			return nil, err
		}
		log.Info("question pack loaded",
			zap.String("path", cfg.questions),
			zap.Int("questions", file.Len()))
	}

	if cfg.redis == "" {
		return file, nil
	}

	rs, err := question.NewRedisStore(cfg.redis, cfg.redisPassword, cfg.redisDB)
	if err != nil {
		if file == nil {
			return nil, err
		}
		log.Warn("redis unavailable, using file store only", zap.Error(err))
		return file, nil
	}
	log.Info("question store connected", zap.String("redis", cfg.redis))

	if file == nil {
		return rs, nil
	}
	return &question.Fallback{Primary: rs, Secondary: file}, nil
}

func ServePage(ctx context.Context, cfg *Config) error {
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting nerdquiz", zap.String("version", releaseVersion))

	store, err := newQuestionStore(cfg, log)
	if err != nil {
		return err
	}

	var narrator game.Narrator
	if cfg.ttsEndpoint != "" {
		narrator = tts.New(cfg.ttsEndpoint, cfg.ttsCache, log)
		log.Info("tts enabled", zap.String("endpoint", cfg.ttsEndpoint))
	}

	manager := game.NewManager(game.Deps{
		Log:   log,
		Store: store,
		TTS:   narrator,
	}, cfg.sessionTimeout, cfg.graceTimeout)
	defer manager.Shutdown()

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		// Websocket connections outlive any sane write timeout; the pumps
		// manage their own liveness.
		WriteTimeout: 0,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))
	mux.GET(cfg.prefix+"/ws", serveWS(manager, log))
	mux.GET(cfg.prefix+"/room/:code/qr", qrHandler(manager))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}
	if cfg.bots {
		mux.POST(cfg.prefix+"/room/:code/bots", addBotHandler(manager, log))
		log.Info("bot driver enabled")
	}

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			log.Info("listening", zap.String("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/"))
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			log.Info("listening", zap.String("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/"))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
