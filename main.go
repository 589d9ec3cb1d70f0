package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"petbattle/battle"
	"petbattle/bridge"
	"petbattle/client"
	"petbattle/config"
	"petbattle/logging"
	"petbattle/server"
)

// 局域网宠物对战入口：
//
//	server  只运行 UDP 服务端与管理接口
//	client  只运行本地参与者与 UI 事件桥
//	room    两者都运行（创建房间的一方）
func main() {
	var cfgPath, mode string
	flag.StringVar(&cfgPath, "config", "config/battle.toml", "config file path; missing file falls back to defaults")
	flag.StringVar(&mode, "mode", "room", "run mode: server | client | room")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.Init(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	switch mode {
	case "server":
		err = runServer(ctx, g, cfg, log)
	case "client":
		err = runClient(ctx, g, cfg, log)
	case "room":
		if err = runServer(ctx, g, cfg, log); err == nil {
			err = runClient(ctx, g, cfg, log)
		}
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.Errorw("startup failed", "mode", mode, "error", err)
		stop()
	}

	if werr := g.Wait(); werr != nil {
		log.Errorw("exited with error", "error", werr)
		err = werr
	}
	log.Info("Shutting down...")
	if err != nil {
		logging.Sync()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *zap.SugaredLogger) error {
	hub := bridge.NewHub(nil, log)
	srv := server.New(cfg.Server, hub, log)
	if err := srv.Start(); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		hub.Close()
		return nil
	})

	if cfg.Server.AdminAddress != "" {
		mux := srv.AdminHandler()
		mux.Handle("/events", hub)
		serveHTTP(ctx, g, cfg.Server.AdminAddress, mux, log)
	}
	return nil
}

func runClient(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *zap.SugaredLogger) error {
	rules, err := battle.LoadRules(cfg.Battle.RulesFile)
	if err != nil {
		return err
	}
	hub := bridge.NewHub(nil, log)
	session := client.NewSession(cfg.Client, hub, log)
	fighter := client.NewFighter(session, rules, cfg.Battle, hub, log)
	hub.SetCommander(fighter)

	if err := session.Start(cfg.Client.ServerAddress); err != nil {
		session.Stop()
		return err
	}
	g.Go(func() error { return fighter.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		session.Stop()
		hub.Close()
		return nil
	})

	if cfg.Client.BridgeAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})
		serveHTTP(ctx, g, cfg.Client.BridgeAddress, mux, log)
	}
	return nil
}

func serveHTTP(ctx context.Context, g *errgroup.Group, addr string, h http.Handler, log *zap.SugaredLogger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Infof("http listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
