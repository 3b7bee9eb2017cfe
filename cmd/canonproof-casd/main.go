// Command canonproof-casd serves any registered CAS backend over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"xdao.co/canonproof/internal/logging"
	"xdao.co/canonproof/storage/casregistry"
	"xdao.co/canonproof/storage/grpccas"

	_ "xdao.co/canonproof/storage/badgercas"
	_ "xdao.co/canonproof/storage/localfs"
	_ "xdao.co/canonproof/storage/s3cas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("canonproof-casd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsg := fs.Int("max-msg-bytes", 64<<20, "maximum gRPC message size")
	logFormat := fs.String("log-format", envOr("CANONPROOF_LOG_FORMAT", logging.FormatJSON), "log format: json or text")
	logLevel := fs.String("log-level", envOr("CANONPROOF_LOG_LEVEL", "info"), "log level")
	shutdown := fs.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown budget")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := logging.New(*logFormat, *logLevel, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		logger.Error("open backend", "backend", *backend, "error", err)
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				logger.Error("close backend", "backend", *backend, "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", "addr", *listen, "error", err)
		return 1
	}

	s := grpc.NewServer(grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		gracefulStop(s, *shutdown, logger)
	}()

	logger.Info("serving", "addr", lis.Addr().String(), "backend", *backend)
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}
	return 0
}

func gracefulStop(s *grpc.Server, budget time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("stopped")
	case <-time.After(budget):
		logger.Warn("graceful stop timed out, forcing")
		s.Stop()
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
