// cmd/dashboard/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/app"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/quote"
	"github.com/rovshanmuradov/sonic-defi/internal/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/ui"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/wallet"
)

const (
	logBufferSize   = 1000
	updateQueueSize = 256
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml/json/toml)")
	walletName := flag.String("wallet", "", "Wallet name from wallets_file (default: first by name)")
	debug := flag.Bool("debug", false, "Show debug logs in the log pane")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Терминал занят интерфейсом: процессный лог пишется только в файл,
	// а лента логов берется из кольцевого буфера.
	cfg.Logging.Console = false
	fileLogger, err := processlog.New(&cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	spillPath := filepath.Join(filepath.Dir(cfg.Logging.LogFile), "dashboard-spill.jsonl")
	logBuffer, err := logger.NewLogBuffer(logBufferSize, spillPath)
	if err != nil {
		log.Fatalf("Failed to init log buffer: %v", err)
	}
	appLogger := logger.NewTUILogger(logBuffer, *debug, fileLogger.Core())
	defer func() {
		_ = appLogger.Sync()
		_ = logBuffer.Close()
	}()

	w, err := pickWallet(cfg.WalletsFile, *walletName)
	if err != nil {
		appLogger.Fatal("Failed to load wallet", zap.Error(err))
	}

	core, err := app.New(rootCtx, cfg, app.Options{Wallet: w, Logger: appLogger})
	if err != nil {
		appLogger.Fatal("Failed to assemble core", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := core.Close(ctx); err != nil {
			appLogger.Error("Shutdown finished with errors", zap.Error(err))
		}
	}()

	unwatch, err := core.Sessions.Watch(rootCtx)
	if err != nil {
		appLogger.Warn("Wallet events unavailable", zap.Error(err))
	} else {
		defer unwatch()
	}

	debouncer := quote.NewDebouncer(cfg.Quote.Debounce, appLogger)
	defer debouncer.Stop()

	sender := ui.NewUpdateSender(updateQueueSize, appLogger)
	defer sender.Close()
	unbridge := ui.BridgeEvents(core.Bus, sender)
	defer unbridge()
	ui.BridgeLogs(logBuffer, sender)

	appLogger.Info("Starting swap dashboard",
		zap.String("network", cfg.Network.Name),
		zap.Bool("wallet", w != nil))

	runner := ui.NewRunner(appLogger, func() (tea.Model, []tea.ProgramOption) {
		model := ui.NewSwapModel(ui.Options{
			Network:      cfg.Network,
			Tokens:       core.Registry.All(),
			Service:      core.Flow,
			Wallet:       core.Sessions,
			Debouncer:    debouncer,
			Sender:       sender,
			Logs:         logBuffer,
			QuoteTimeout: cfg.Quote.Timeout,
			DebugLogs:    *debug,
			Logger:       appLogger,
		})
		return model, []tea.ProgramOption{tea.WithAltScreen()}
	})
	if err := runner.Run(rootCtx); err != nil {
		appLogger.Error("Dashboard stopped with error", zap.Error(err))
	}
}

// pickWallet returns nil when no wallets file is configured: the dashboard
// then only quotes.
func pickWallet(path, name string) (*wallet.Wallet, error) {
	if path == "" {
		return nil, nil
	}
	wallets, err := wallet.LoadWallets(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		w, ok := wallets[name]
		if !ok {
			return nil, fmt.Errorf("wallet %q not found in %s", name, path)
		}
		return w, nil
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no wallets in %s", path)
	}
	names := make([]string, 0, len(wallets))
	for n := range wallets {
		names = append(names, n)
	}
	sort.Strings(names)
	return wallets[names[0]], nil
}
