// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/config"
	"chatrelay/internal/relay"
	"chatrelay/internal/wsgate"
)

// exitFatal - exit status when the relay cannot continue.
const exitFatal = 10

const usage = "[USAGE]: ./chatrelay [options] [port]"

func main() {
	cfg, err := parseArgs(os.Args[1:], config.FromEnv(), os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	logFile := openActivityLog(cfg.LogFile)

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		log.Printf("Failed to start relay: %v", err)
		closeActivityLog(logFile)
		os.Exit(exitFatal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if cfg.UI {
		err = RunWithUI(ctx, cfg, ln, logFile)
	} else {
		logger := log.New(activityWriter(os.Stdout, logFile), "", log.LstdFlags)
		err = serve(ctx, cfg, ln, logger, nil)
	}
	stop()
	closeActivityLog(logFile)

	if err != nil {
		log.Printf("Relay error: %v", err)
		os.Exit(exitFatal)
	}
}

// parseArgs applies command line flags and an optional positional port on top of base.
func parseArgs(args []string, base config.Config, output io.Writer) (config.Config, error) {
	cfg := base
	fs := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&cfg.UI, "ui", cfg.UI, "Run the operator console")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Maximum number of concurrent connections")
	fs.IntVar(&cfg.MessageSize, "msg-size", cfg.MessageSize, "Message buffer capacity in bytes")
	fs.StringVar(&cfg.WebSocketAddr, "ws", cfg.WebSocketAddr, "WebSocket gateway address, e.g. :4680 (disabled when empty)")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Activity log file (disabled when empty)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Port = fs.Arg(0)
	default:
		return cfg, fmt.Errorf("too many arguments: %v", fs.Args())
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openActivityLog(path string) *os.File {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Error opening log file: %v", err)
		return nil
	}
	return f
}

func closeActivityLog(f *os.File) {
	if f != nil {
		f.Close()
	}
}

// activityWriter tees output into the activity log when there is one.
func activityWriter(w io.Writer, logFile *os.File) io.Writer {
	if logFile == nil {
		return w
	}
	return io.MultiWriter(w, logFile)
}

func newRelay(cfg config.Config, logger *log.Logger) (*relay.Relay, error) {
	return relay.New(
		relay.WithMaxConnections(cfg.MaxConnections),
		relay.WithMessageSize(cfg.MessageSize),
		relay.WithNicknameLength(cfg.NicknameLength),
		relay.WithQueueSize(cfg.QueueSize),
		relay.WithWriteTimeout(cfg.WriteTimeout),
		relay.WithLogger(logger),
	)
}

// serve runs the relay on ln, plus the WebSocket gateway when configured,
// until ctx is cancelled. ready, if set, gets the relay before it starts.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, logger *log.Logger, ready func(*relay.Relay)) error {
	r, err := newRelay(cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}
	if ready != nil {
		ready(r)
	}

	if cfg.WebSocketAddr != "" {
		gw := wsgate.New(r,
			wsgate.WithLogger(logger),
			wsgate.WithReadLimit(int64(cfg.MessageSize)),
		)
		go func() {
			if err := gw.ListenAndServe(ctx, cfg.WebSocketAddr); err != nil {
				logger.Println("ERR", err)
			}
		}()
	}

	logger.Printf("Relay started on port %s", cfg.Port)
	return r.Serve(ctx, ln)
}
