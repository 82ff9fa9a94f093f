package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/channel"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/config"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/emitter"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/handler"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/session"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/ui"
	"github.com/Harshitk-cp/smartcart/libs/health"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const healthPeriod = 10 * time.Second

var (
	runSessionID   string
	runInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk session",
	Long: `Run opens the camera, connects the session channel and uploads a frame
every emitter period until interrupted.

With --interactive (the default) commands are read from stdin:

  cart                  show the cart
  remove <n>            remove cart line n (1-based)
  checkout              pay for the cart
  register <name> <ph>  register the face in view
  history               list past purchases
  reconnect             reconnect after the channel gave up
  logout                log out and end the session
  quit                  end the session`,
	Args: cobra.NoArgs,
	RunE: runKiosk,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "continue the session created by `kiosk login`")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", true, "read kiosk commands from stdin")
	rootCmd.AddCommand(runCmd)
}

func newDevice(c config.CameraConfig) camera.Device {
	if c.Driver == "dir" {
		return &camera.DirDevice{Dir: c.Dir, Logger: logger}
	}
	return captureDevice()
}

func runKiosk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewPrometheusCollector()
	console := ui.NewConsole(cmd.OutOrStdout())

	sess, err := session.New(session.Config{
		ID:      runSessionID,
		BaseURL: strings.TrimRight(cfg.Backend.URL, "/") + cfg.Backend.WSPath,
		Channel: channel.Config{
			BaseDelay:         cfg.Channel.BaseDelay,
			MaxAttempts:       cfg.Channel.MaxAttempts,
			DialTimeout:       cfg.Channel.DialTimeout,
			WriteWait:         cfg.Channel.WriteWait,
			MaxMessageSize:    cfg.Channel.MaxMessageSize,
			HeartbeatInterval: cfg.Channel.HeartbeatInterval,
			PingPeriod:        cfg.Channel.PingPeriod,
			PongWait:          cfg.Channel.PongWait,
		},
		Emitter: emitter.Config{
			Period:  cfg.Emitter.Period,
			DataURL: cfg.Emitter.DataURL,
		},
	}, newDevice(cfg.Camera), camera.Constraints{
		Device:      cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		JPEGQuality: cfg.Camera.JPEGQuality,
	}, newAPIClient(), console, session.WithLogger(logger), session.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer sess.Close()
	logger.Info("kiosk session created", "session_id", sess.ID(), "backend", cfg.Backend.URL)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("channel", health.Bool(func() bool {
		return sess.ChannelState() == channel.Connected
	}, errors.New("session channel is not connected")))
	checker.Register("camera", health.Bool(sess.CameraRunning, errors.New("camera is not running")))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		checker.Run(gctx, healthPeriod)
		return nil
	})

	if cfg.Status.Enabled {
		h := handler.NewHTTPHandler(sess, checker, collector.Handler(), logger)
		srv := &http.Server{
			Addr:         cfg.Status.Address,
			Handler:      h.Router(os.Stderr),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting status server", "address", cfg.Status.Address)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if runInteractive {
		go repl(gctx, cmd.InOrStdin(), cmd.OutOrStdout(), sess, stop)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("kiosk session ended", "session_id", sess.ID())
	return nil
}

// repl reads kiosk commands until quit, logout or end of input.
func repl(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, stop func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if done := execute(ctx, out, sess, fields); done {
			stop()
			return
		}
	}
}

func execute(ctx context.Context, out io.Writer, sess *session.Session, fields []string) bool {
	var err error
	switch fields[0] {
	case "cart":
		st := sess.Status()
		for i, it := range st.Cart.Items {
			fmt.Fprintf(out, "%d. %s x%d  %.2f\n", i+1, it.Name, it.Quantity, it.Subtotal)
		}
		fmt.Fprintf(out, "%d items, total %.2f\n", st.Cart.TotalQuantity, st.Cart.TotalAmount)
	case "remove":
		if len(fields) != 2 {
			err = errors.New("usage: remove <line>")
			break
		}
		n, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			err = fmt.Errorf("invalid line number %q", fields[1])
			break
		}
		err = sess.RemoveItem(ctx, n-1)
	case "checkout":
		_, err = sess.Checkout(ctx)
	case "register":
		if len(fields) < 3 {
			err = errors.New("usage: register <name> <phone>")
			break
		}
		name := strings.Join(fields[1:len(fields)-1], " ")
		_, err = sess.Register(ctx, name, fields[len(fields)-1])
	case "history":
		var resp *wire.TransactionsResponse
		if resp, err = sess.History(ctx); err == nil {
			printTransactions(out, resp)
		}
	case "reconnect":
		err = sess.Reconnect(ctx)
	case "logout":
		if err = sess.Logout(ctx); err == nil {
			return true
		}
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}
	if err != nil {
		fmt.Fprintln(out, "error:", err)
	}
	return false
}
