package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
	"github.com/tgrady18/EchoedSDK/pkg/bus"
	"github.com/tgrady18/EchoedSDK/pkg/echoed"
	"github.com/tgrady18/EchoedSDK/pkg/logger"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !cfg.Configured() {
		return fmt.Errorf("backend not configured: run `echoed onboard` or set ECHOED_API_KEY / ECHOED_COMPANY_ID")
	}

	sdk, err := echoed.New(cfg)
	if err != nil {
		return fmt.Errorf("error starting SDK: %w", err)
	}
	defer sdk.Close()

	sdk.OnForeground()
	defer sdk.OnBackground()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/hit", hitHandler(sdk))
	mux.HandleFunc("/surface", surfaceHandler(ctx, sdk))

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s Gateway listening on %s (surface at ws://%s/surface)\n", internal.Logo, addr, addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// hitHandler fires an anchor on behalf of the host application.
func hitHandler(sdk *echoed.SDK) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			AnchorID string `json:"anchorId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AnchorID == "" {
			http.Error(w, "expected {\"anchorId\": ...}", http.StatusBadRequest)
			return
		}

		sdk.HitAnchor(body.AnchorID)
		w.WriteHeader(http.StatusAccepted)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// surfaceHandler bridges the prompt/response bus onto a websocket: prompts
// are pushed to the client as JSON, answers come back the same way.
func surfaceHandler(ctx context.Context, sdk *echoed.SDK) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WarnCF("gateway", "Websocket upgrade failed",
				map[string]any{"error": err.Error()})
			return
		}
		defer conn.Close()

		logger.InfoCF("gateway", "Surface connected",
			map[string]any{"remote": conn.RemoteAddr().String()})

		connCtx, connCancel := context.WithCancel(ctx)
		defer connCancel()

		go func() {
			surface := sdk.Surface()
			for {
				prompt, ok := surface.ConsumePrompt(connCtx)
				if !ok {
					return
				}
				if err := conn.WriteJSON(prompt); err != nil {
					logger.WarnCF("gateway", "Prompt push failed",
						map[string]any{"error": err.Error()})
					connCancel()
					return
				}
			}
		}()

		for {
			var resp bus.Response
			if err := conn.ReadJSON(&resp); err != nil {
				logger.InfoCF("gateway", "Surface disconnected",
					map[string]any{"error": err.Error()})
				return
			}
			if err := sdk.Surface().PublishResponse(connCtx, resp); err != nil {
				logger.WarnCF("gateway", "Response publish failed",
					map[string]any{"error": err.Error()})
				return
			}
		}
	}
}
