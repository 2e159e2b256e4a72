// Command walletctl drives wallet connections and offer settlement from the
// terminal: a long-running HTTP surface via serve, or one-shot connect,
// status, and take commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	walletcore "github.com/offerhaven/walletcore"
	"github.com/offerhaven/walletcore/httpapi"
	"github.com/offerhaven/walletcore/kvstore"
	"github.com/offerhaven/walletcore/marketplace"
	"github.com/offerhaven/walletcore/relay"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Wallet connection and offer settlement tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")

	rootCmd.AddCommand(serveCmd(), connectCmd(), statusCmd(), takeCmd(), disconnectCmd())

	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// app is the assembled stack shared by every command.
type app struct {
	cfg    Config
	logger *slog.Logger
	mgr    *relay.SessionManager
	router *walletcore.Router
	flow   *walletcore.Flow
	closer func()
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)

	var prim kvstore.Primitive
	var closeDB func()
	if cfg.Database != "" {
		db, err := kvstore.OpenSQLite(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		prim = db
		closeDB = func() { db.Close() }
	} else {
		prim = kvstore.NewMemoryPrimitive()
		closeDB = func() {}
	}
	store := kvstore.New(prim, cfg.Host, kvstore.WithLogger(logger))

	transport, err := relay.Dial(ctx, cfg.RelayURL, store, relay.WithTransportLogger(logger))
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("dialing relay: %w", err)
	}

	mgr := relay.NewSessionManager(transport, relay.WithManagerLogger(logger))
	mgr.Start(ctx)

	router := walletcore.NewRouter(mgr, nil,
		walletcore.WithMobile(cfg.Mobile),
		walletcore.WithRouterLogger(logger),
	)

	var resolver walletcore.OfferResolver
	if cfg.MarketplaceURL != "" {
		resolver = marketplace.NewClient(cfg.MarketplaceURL, marketplace.WithLogger(logger))
	}

	flow := walletcore.NewFlow(router, resolver,
		walletcore.WithFlowLogger(logger),
		walletcore.WithFlowMobile(cfg.Mobile),
		walletcore.WithSessionStore(walletcore.NewMemorySessionStore()),
		walletcore.WithURISink(func(uri string) {
			fmt.Println("Scan with your wallet to approve:")
			color.Cyan("  %s", uri)
		}),
		walletcore.WithNotifier(func(msg string) {
			color.Yellow("! %s", msg)
		}),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		mgr:    mgr,
		router: router,
		flow:   flow,
		closer: func() {
			mgr.Close()
			transport.Close()
			closeDB()
		},
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.closer()

			srv := httpapi.NewServer(a.router, a.flow, httpapi.WithLogger(a.logger))
			defer srv.Close()
			errc := make(chan error, 1)
			go func() { errc <- srv.Run(a.cfg.Listen) }()

			select {
			case <-ctx.Done():
				return nil
			case err := <-errc:
				return err
			}
		},
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Pair with a remote wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.closer()

			if a.router.Active() == walletcore.BackendRemote {
				color.Green("already connected: %s", a.router.Address())
				return nil
			}

			result, err := a.router.ConnectRemote(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Scan with your wallet to approve:")
			color.Cyan("  %s", result.URI)

			if err := <-result.Approved; err != nil {
				return fmt.Errorf("pairing not approved: %w", err)
			}
			color.Green("connected: %s", a.router.Address())
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wallet connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closer()

			st := a.flow.Status()
			fmt.Printf("backend: %s\n", st.Backend)
			if st.Address != "" {
				fmt.Printf("address: %s\n", st.Address)
			}
			fmt.Printf("pending offer: %v\n", st.Pending)
			fmt.Printf("busy: %v\n", st.Busy)
			return nil
		},
	}
}

func takeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "take <offer|offer-id>",
		Short: "Settle an offer with the connected wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closer()

			out := a.flow.Settle(cmd.Context(), args[0])
			if out.Status != walletcore.SettleSuccess {
				return fmt.Errorf("settlement failed (%s): %s", out.Category, out.Message)
			}
			color.Green("offer settled, transaction %s", out.TxID)
			return nil
		},
	}
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Tear down the wallet connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closer()

			a.router.Disconnect(cmd.Context(), walletcore.BackendNone)
			fmt.Println("disconnected")
			return nil
		},
	}
}
