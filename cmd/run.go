package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/braintree/manners"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/config"
	"github.com/lunemec/spicord/pkg/gateway"
	httpHandler "github.com/lunemec/spicord/pkg/handlers/http"
	"github.com/lunemec/spicord/pkg/handlers/notifier"
	"github.com/lunemec/spicord/pkg/host/loop"
	"github.com/lunemec/spicord/pkg/host/pool"
	"github.com/lunemec/spicord/pkg/host/tick"
	"github.com/lunemec/spicord/pkg/scheduler"
	"github.com/lunemec/spicord/pkg/server"
	"github.com/lunemec/spicord/pkg/services"
	"github.com/lunemec/spicord/pkg/spicord"
	"github.com/lunemec/spicord/pkg/updater"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run Spicord with a standalone server console",
	Run:   runSpicord,
}

var (
	production    bool
	serverVersion string
	playerLimit   int
)

const terminationTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&production, "production", false, "use production logger (JSON output)")
	runCmd.Flags().Bool("debug", false, "enable debug messages")
	runCmd.Flags().StringVar(&serverVersion, "server_version", "1.20.1", "version reported by the standalone server")
	runCmd.Flags().IntVar(&playerLimit, "player_limit", 20, "player limit reported by the standalone server")

	must(viper.BindPFlag("debug", runCmd.Flags().Lookup("debug")))
}

func runSpicord(cmd *cobra.Command, args []string) {
	var (
		log *zap.Logger
		err error
	)
	if production {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Printf("error inicializing logger: %s \n", err)
		os.Exit(1)
	}
	defer log.Sync() // nolint: errcheck

	err = runWrapper(log, cmd, args)
	if err != nil {
		log.Fatal("error running spicord", zap.Error(err))
	}
}

func runWrapper(log *zap.Logger, cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	gateway.RouteLogs(log)

	sched, stopHost, err := hostScheduler(cfg.Scheduler)
	if err != nil {
		return err
	}
	defer stopHost()
	log.Info("Using host scheduler", zap.String("host", cfg.Scheduler.Host))

	svcs := services.NewManager()
	if cfg.Links.File != "" {
		linking, err := services.NewBoltLinkingService(log.Named("links"), cfg.Links.File)
		if err != nil {
			return errors.Wrapf(err, "error inicializing links file: %s", cfg.Links.File)
		}
		svcs.Register(services.Linking, linking)
	}

	srv := server.NewStandalone(log.Named("server"), serverVersion, playerLimit)
	app := spicord.New(spicord.Options{
		Log:       log,
		Config:    cfg,
		Scheduler: sched,
		Connector: gateway.DiscordConnector{},
		Server:    srv,
		Services:  svcs,
	})

	signalChan := make(chan os.Signal, 1)
	// Notify signalChan on SIGINT and SIGTERM.
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerConsoleCommands(log, srv, app, cancel)

	if cfg.UpdateCheck {
		updater.New(log.Named("updater"), cfg.UpdateURL, cfg.Debug).
			CheckAsync(sched, spicord.Version, map[string]string{"X-Server-Type": srv.Type()})
	}
	app.Load()

	if cfg.Presence.Interval > 0 {
		presence := notifier.New(log.Named("presence"), sched, app, srv, cfg.Presence.Interval).Start()
		defer presence.Cancel()
	}

	var statusServer *manners.GracefulServer
	if cfg.Status.Addr != "" {
		statusServer = manners.NewWithServer(&http.Server{
			Addr:         cfg.Status.Addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler:      httpHandler.New(log.Named("http"), app),
		})
		go func() {
			log.Info("Listening on address", zap.String("addr", cfg.Status.Addr))
			if err := statusServer.ListenAndServe(); err != nil {
				log.Error("ListenAndServe error", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := srv.RunConsole(ctx, os.Stdin); err != nil {
			log.Error("Console error", zap.Error(err))
		}
	}()

	select {
	case s := <-signalChan:
		log.Info(fmt.Sprintf("Captured %v. Exiting...", s))
	case <-ctx.Done():
		log.Info("Stopping...")
	}
	cancel()

	if statusServer != nil {
		statusServer.Close()
	}
	if err := app.OnDisable(); err != nil {
		log.Error("Error disabling Spicord", zap.Error(err))
	}
	sched.Shutdown()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), terminationTimeout)
	defer waitCancel()
	if !sched.AwaitTermination(waitCtx) {
		log.Warn("Some tasks did not finish in time", zap.Duration("timeout", terminationTimeout))
	}
	return nil
}

// hostScheduler starts the configured host scheduler and returns its adapter
// with a function stopping the host.
func hostScheduler(cfg config.Scheduler) (scheduler.Scheduler, func(), error) {
	switch cfg.Host {
	case config.HostTick:
		host := tick.New(cfg.Tick)
		return scheduler.NewTickAdapter(host), host.Stop, nil
	case config.HostPool:
		host := pool.New(cfg.PoolSize)
		return scheduler.NewPoolAdapter(host), host.Close, nil
	case config.HostLoop:
		host := loop.New()
		return scheduler.NewLoopAdapter(host), host.Stop, nil
	}
	return nil, nil, errors.Errorf("unknown scheduler host: %q", cfg.Host)
}

// registerConsoleCommands adds the commands of the standalone console.
func registerConsoleCommands(log *zap.Logger, srv *server.Standalone, app *spicord.Spicord, stop func()) {
	srv.HandleCommand("stop", func([]string) {
		stop()
	})
	srv.HandleCommand("join", func(args []string) {
		for _, name := range args {
			if _, err := srv.Join(name); err != nil {
				log.Error("Unable to join", zap.String("player", name), zap.Error(err))
			}
		}
	})
	srv.HandleCommand("leave", func(args []string) {
		for _, name := range args {
			if err := srv.Leave(name); err != nil {
				log.Warn("Unable to leave", zap.Error(err))
			}
		}
	})
	srv.HandleCommand("link", func(args []string) {
		linking, ok := app.Services().Linking()
		if !ok {
			log.Warn("Account linking is disabled, set links.file to enable it")
			return
		}
		for _, name := range args {
			player, ok := srv.PlayerByName(name)
			if !ok {
				log.Warn("Player is not online", zap.String("player", name))
				continue
			}
			err := linking.AddPending(services.PendingLink{PlayerID: player.ID, Name: player.Name})
			if err != nil {
				log.Error("Unable to add pending link", zap.String("player", name), zap.Error(err))
			}
		}
	})
	srv.HandleCommand("say", func(args []string) {
		srv.Broadcast(strings.Join(args, " "))
	})
	srv.HandleCommand("spicord", func(args []string) {
		if len(args) == 0 {
			log.Info("Usage: spicord <bots|restart>")
			return
		}
		switch args[0] {
		case "bots":
			for _, b := range app.Bots() {
				log.Info("Bot",
					zap.String("bot", b.Name()),
					zap.Stringer("status", b.Status()),
					zap.String("gateway", b.GatewayStatus()),
					zap.Strings("commands", b.Commands()),
				)
			}
		case "restart":
			app.RestartBots()
		default:
			log.Warn("Unknown subcommand", zap.String("subcommand", args[0]))
		}
	})
}
