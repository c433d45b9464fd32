package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"claudeui/internal/server"
)

func main() {
	port := 3001
	if v := strings.TrimSpace(os.Getenv("CLAUDEUI_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			port = n
		}
	}

	store, err := server.OpenStore(strings.TrimSpace(os.Getenv("CLAUDEUI_DB")))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	monitor := server.NewMonitor()
	bridge := server.NewBridge(store, monitor)
	gateway := server.NewGateway(store, bridge, monitor)
	tree := server.NewFileTree()
	defer tree.Close()
	api := server.NewAPI(store, bridge, tree, monitor)

	r := chi.NewRouter()
	api.Routes(r)
	r.Handle("/ws", gateway)

	telegramCfg := server.NewTelegramConfigFromEnv()
	if telegramCfg.BotToken != "" {
		tg, err := server.NewTelegramGateway(telegramCfg, store, bridge)
		if err != nil {
			log.Printf("Telegram gateway disabled: %v", err)
		} else {
			go func() {
				if err := tg.Start(context.Background()); err != nil {
					log.Printf("Telegram gateway error: %v", err)
				}
			}()
		}
	}

	log.Printf("Server running on http://localhost:%d", port)
	log.Println("Make sure the Claude CLI is installed and available in PATH")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
