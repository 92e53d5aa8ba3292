// Command relayserver runs the lockstep broadcast relay: it accepts TCP and
// WebSocket clients, runs each through the handshake, and hands the result
// to the dispatcher for placement into a game session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tikotus/funky-server/config"
	"github.com/tikotus/funky-server/internal/dispatcher"
	"github.com/tikotus/funky-server/internal/handshake"
	"github.com/tikotus/funky-server/internal/player"
	"github.com/tikotus/funky-server/internal/transport"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadConfig()
	d := dispatcher.New()
	go d.Run()

	log.Printf("=================================")
	log.Printf("  Lockstep Relay Server")
	log.Printf("=================================")
	log.Printf("  Host:       %s", cfg.Host)
	log.Printf("  TCP port:   %d", cfg.TCPPort)
	log.Printf("  WS port:    %d", cfg.WebSocketPort)
	log.Printf("  Echo port:  %d", cfg.EchoPort)
	log.Printf("  CORS:       %v", cfg.EnableCORS)
	log.Printf("=================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onAccept := func(conn transport.Conn) {
		go acceptConn(conn, d)
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.TCPPort)
		if err := transport.ListenTCP(addr, onAccept); err != nil {
			log.Printf("tcp listener stopped: %v", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.EchoPort)
		if err := transport.ListenEcho(addr); err != nil {
			log.Printf("echo listener stopped: %v", err)
		}
	}()

	httpServer := newHTTPServer(cfg, d, onAccept)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WebSocketPort)
		log.Printf("websocket transport listening on %s", addr)
		httpServer.Addr = addr
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("websocket listener stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	d.TerminateAll()
	d.Stop()
}

// acceptConn wraps a freshly accepted transport connection as a Player,
// runs the handshake, and offers a successfully identified player to the
// dispatcher.
func acceptConn(conn transport.Conn, d *dispatcher.Dispatcher) {
	p := player.New(conn)
	log.Printf("accepted connection from %s, assigned player %s", conn.RemoteAddr(), p.ID)

	if !handshake.Run(p) {
		log.Printf("player %s disconnected before completing handshake", p.ID)
		p.Close()
		return
	}

	d.Offer(p)
}

func newHTTPServer(cfg *config.ServerConfig, d *dispatcher.Dispatcher, onAccept func(transport.Conn)) *http.Server {
	wsListener := transport.NewWebSocketListener(cfg.EnableCORS, onAccept)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsListener)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/stats", handleStats(d))

	return &http.Server{Handler: mux}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStats(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := d.GetStats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(stats)
	}
}

// loadConfig reads configuration from environment variables, falling back
// to DefaultServerConfig for anything unset.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if v := os.Getenv("TCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.TCPPort = p
		}
	}
	if v := os.Getenv("WS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.WebSocketPort = p
		}
	}
	if v := os.Getenv("ECHO_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.EchoPort = p
		}
	}
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}

	return cfg
}
