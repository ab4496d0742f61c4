// scanctl drives the scan pipeline from the terminal: login, run a scan
// against a backend with a simulated camera, and show the points balance.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"time"

	"smartbin-scan/internal/api"
	"smartbin-scan/internal/camera"
	"smartbin-scan/internal/capture"
	"smartbin-scan/internal/config"
	"smartbin-scan/internal/event"
	"smartbin-scan/internal/logger"
	"smartbin-scan/internal/pending"
	"smartbin-scan/internal/points"
	"smartbin-scan/internal/push"
	"smartbin-scan/internal/qrgate"
	"smartbin-scan/internal/scan"
	"smartbin-scan/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logHandler := logger.NewPrettyHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.LogLevel),
	})
	slog.SetDefault(slog.New(logHandler))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "login":
		err = runLogin(cfg)
	case "scan":
		err = runScan(cfg, os.Args[2:])
	case "points":
		err = runPoints(cfg)
	case "logout":
		err = runLogout(cfg)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  scanctl login
  scanctl scan --image <file> --qr <bin-token>
  scanctl points
  scanctl logout`)
}

func restore(cfg *config.Config) (*session.Session, *session.Store, error) {
	store, err := session.OpenStore(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}

	cell := pending.NewCell(store, cfg.ResultPollHz, cfg.ResultWatchdog)
	return session.Restore(store, cell), store, nil
}

func runLogin(cfg *config.Config) error {
	var name, password string
	fmt.Print("name: ")
	fmt.Scanln(&name)
	fmt.Print("password: ")
	fmt.Scanln(&password)

	sess, _, err := restore(cfg)
	if err != nil {
		return err
	}

	client := api.New(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, nil)
	resp, err := client.Login(context.Background(), name, password)
	if err != nil {
		return err
	}

	if err := sess.Login(resp.AccessToken, resp.User); err != nil {
		return err
	}

	fmt.Printf("logged in as %s (%d points)\n", resp.User.Name, resp.User.Points)
	return nil
}

func runLogout(cfg *config.Config) error {
	sess, _, err := restore(cfg)
	if err != nil {
		return err
	}

	sess.Logout()
	fmt.Println("logged out")
	return nil
}

func runPoints(cfg *config.Config) error {
	sess, _, err := restore(cfg)
	if err != nil {
		return err
	}
	if !sess.LoggedIn() {
		return fmt.Errorf("not logged in; run scanctl login")
	}

	client := api.New(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, sess)
	if err := points.Hydrate(context.Background(), client, sess); err != nil {
		return err
	}

	user, _ := sess.User()
	fmt.Printf("%s: %d points\n", user.Name, user.Points)
	return nil
}

func runScan(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	imagePath := fs.String("image", "", "still image the simulated camera serves")
	qrToken := fs.String("qr", "", "bin token the simulated QR decoder yields")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" || *qrToken == "" {
		return fmt.Errorf("both --image and --qr are required")
	}

	file, err := os.Open(*imagePath)
	if err != nil {
		return err
	}
	frame, _, err := image.Decode(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("cannot decode %s: %w", *imagePath, err)
	}

	sess, _, err := restore(cfg)
	if err != nil {
		return err
	}
	if !sess.LoggedIn() {
		return fmt.Errorf("not logged in; run scanctl login")
	}

	client := api.New(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, sess)

	// Boot hydration against the authoritative summary.
	if err := points.Hydrate(context.Background(), client, sess); err != nil {
		slog.Warn("points hydration failed", "error", err)
	}

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	pipeline := scan.New(
		sess,
		camera.NewSimDevice(frame),
		&camera.NopSink{},
		qrgate.StaticDecoder{Token: *qrToken},
		client,
		client,
		bus,
		scan.Options{
			Capture: capture.Options{
				RetryWait: cfg.CaptureRetryWait,
				Quality:   cfg.JPEGQuality,
			},
			Gate: qrgate.Options{
				SampleHz:   cfg.QRSampleHz,
				Cooldown:   cfg.QRRejectCooldown,
				ArmedDelay: cfg.ArmedDelay,
			},
			UploadTimeout: cfg.UploadTimeout,
		},
		func() { slog.Info("result view open, waiting for scan result") },
	)

	// Per-user push stream; scan results pushed here merge the same way the
	// HTTP result does.
	if channel := dialPush(cfg, sess, pipeline); channel != nil {
		defer channel.Close()
	}

	ctx := context.Background()
	if err := pipeline.StartCamera(ctx); err != nil {
		return err
	}
	defer pipeline.StopCamera()

	// Narrate the pipeline until the gate arms.
	for e := range events {
		slog.Info(string(e.Type), "payload", e.Payload)
		if e.Type == event.TypeQRArmed {
			break
		}
		if e.Type == event.TypeQRRejected || e.Type == event.TypeCameraError {
			return fmt.Errorf("%v", e.Payload)
		}
	}

	// The armed event races the pipeline's own state flip by a hair.
	for !pipeline.ShutterEnabled() {
		time.Sleep(10 * time.Millisecond)
	}

	if err := pipeline.Shutter(ctx); err != nil {
		return err
	}

	result, err := sess.Pending.Await(ctx)
	if err != nil {
		return err
	}

	user, _ := sess.User()
	if result.Valid {
		fmt.Printf("bottle accepted: +%d points (total %d)\n", result.Points, user.Points)
		pipeline.Done()
	} else {
		fmt.Printf("scan invalid: %s\n", result.Reason)
		_ = pipeline.Retake()
	}

	return nil
}

func dialPush(cfg *config.Config, sess *session.Session, pipeline *scan.Pipeline) *push.Channel {
	wsURL, err := cfg.WebSocketURL(sess.UserID())
	if err != nil {
		slog.Warn("push channel unavailable", "error", err)
		return nil
	}

	credential, err := sess.Credential()
	if err != nil {
		return nil
	}

	channel, err := push.Dial(context.Background(), wsURL, credential, pipeline.HandlePushResult, nil)
	if err != nil {
		slog.Warn("push channel dial failed", "error", err)
		return nil
	}

	sess.AttachPush(channel)
	return channel
}
