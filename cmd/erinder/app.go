package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/erinder/internal/application/dispatch"
	"github.com/erinder/internal/application/verification"
	"github.com/erinder/internal/channel"
	"github.com/erinder/internal/config"
	"github.com/erinder/internal/domain"
	"github.com/erinder/internal/infrastructure/dynamo"
	"github.com/erinder/internal/infrastructure/smtp"
	"github.com/erinder/internal/infrastructure/sns"
	"github.com/erinder/internal/pkg/logger"
	"go.uber.org/zap"
)

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *dynamodb.Client
	senders channel.Registry

	reminders     *dynamo.ReminderRepo
	verifications *dynamo.VerificationRepo
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb client: %w", err)
	}

	senders := channel.Registry{
		domain.ChannelEmail: channel.NewEmail(smtp.NewMailer(cfg.SMTP)),
		domain.ChannelSMS:   channel.Noop(domain.ChannelSMS),
	}
	if cfg.SNS.Enabled {
		awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.SNS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		senders[domain.ChannelSMS] = channel.NewSMS(sns.NewSender(awsCfg, cfg))
	} else {
		log.Warn("SNS disabled, SMS destinations will fail")
	}

	return &app{
		cfg:           cfg,
		log:           log,
		db:            db,
		senders:       senders,
		reminders:     dynamo.NewReminderRepo(db, cfg.DynamoTables.Reminders),
		verifications: dynamo.NewVerificationRepo(db, cfg.DynamoTables.VerificationCodes, cfg.DynamoTables.Users),
	}, nil
}

func (a *app) scheduler() *dispatch.Scheduler {
	return dispatch.New(a.reminders, a.senders, dispatch.Config{
		Interval:    a.cfg.Dispatch.Interval,
		Concurrency: a.cfg.Dispatch.Concurrency,
		SendTimeout: a.cfg.Dispatch.SendTimeout,
	}, a.log)
}

func (a *app) codeManager() (*verification.Manager, error) {
	sender, err := a.senders.Lookup(domain.Channel(a.cfg.Verification.Channel))
	if err != nil {
		return nil, err
	}
	return verification.NewManager(a.verifications, sender, verification.Config{
		Cooldown:    a.cfg.Verification.Cooldown,
		Validity:    a.cfg.Verification.Validity,
		CodeDigits:  a.cfg.Verification.CodeDigits,
		SendTimeout: a.cfg.Dispatch.SendTimeout,
	}, a.log), nil
}

func (a *app) bootstrap(ctx context.Context) {
	dynamo.Bootstrap(ctx, a.db, a.cfg.DynamoTables, a.log)
}
