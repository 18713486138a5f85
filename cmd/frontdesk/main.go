package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardelia/frontdesk/pkg/backoffice"
	"github.com/ardelia/frontdesk/pkg/call"
	"github.com/ardelia/frontdesk/pkg/config"
	"github.com/ardelia/frontdesk/pkg/logging"
	"github.com/ardelia/frontdesk/pkg/realtime"
	"github.com/ardelia/frontdesk/pkg/redact"
	"github.com/ardelia/frontdesk/pkg/runner"
	"github.com/ardelia/frontdesk/pkg/session"
	"github.com/ardelia/frontdesk/pkg/telephony"
)

// aiDialer adapts the concrete realtime dialer to the session interface.
type aiDialer struct {
	dialer *realtime.Dialer
}

func (d aiDialer) Dial(ctx context.Context) (session.AISession, error) {
	return d.dialer.Dial(ctx)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	dialTo := flag.String("dial_to", "", "destination number for an outbound call")
	dialFrom := flag.String("dial_from", "", "caller ID for an outbound call")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	rtCfg, err := cfg.Realtime()
	if err != nil {
		logger.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}
	dialer := realtime.NewDialer(rtCfg, logging.ForComponent(logger, "realtime"))

	stats := backoffice.NewStatsSink(cfg.Backoffice.Stats, logging.ForComponent(logger, "stats"))
	booker := backoffice.NewBookingClient(cfg.Backoffice.Booking, logging.ForComponent(logger, "booking"))
	sms := backoffice.NewSMSClient(cfg.Backoffice.SMS)

	deps := session.Deps{
		Dialer: aiDialer{dialer: dialer},
		SMS:    sms,
		Booker: booker,
		Stats:  stats,
		Defaults: call.Defaults{
			Prompt:   cfg.Agent.Prompt,
			Voice:    cfg.Agent.Voice,
			Greeting: cfg.Agent.Greeting,
		},
		SMSLimit:           cfg.Agent.SMSLimit,
		TranscriptionModel: dialer.TranscriptionModel(),
		Logger:             logging.ForComponent(logger, "session"),
	}

	transport := telephony.New(cfg.Telephony, telephony.AgentParams{
		Prompt:          cfg.Agent.Prompt,
		Voice:           cfg.Agent.Voice,
		Greeting:        cfg.Agent.Greeting,
		BookingEnabled:  cfg.Agent.BookingEnabled,
		AssistantNumber: cfg.Agent.AssistantNumber,
	}, func(conn *telephony.Conn) telephony.CallHandler {
		return session.New(deps, conn)
	}, logging.ForComponent(logger, "telephony"))

	life := runner.NewLifecycle(runner.Hooks{
		OnStart: func() {
			if err := transport.Start(context.Background()); err != nil {
				logger.Error("telephony_start_failed", "error", err.Error())
				os.Exit(1)
			}
			if *dialTo != "" && *dialFrom != "" {
				outbound := telephony.NewOutboundDialer(cfg.Telephony)
				callSID, err := outbound.Dial(context.Background(), *dialTo, *dialFrom, "")
				if err != nil {
					logger.Error("outbound_dial_failed", "error", err.Error())
				} else {
					logger.Info("outbound_dial_started", "call_sid", callSID)
				}
			}
		},
		OnStop: func() {
			logger.Info("shutdown_complete")
		},
	}, 15*time.Second, transport, stats)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := life.Run(ctx); err != nil {
		logger.Error("shutdown_error", "error", err.Error())
		os.Exit(1)
	}
}
