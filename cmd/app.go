package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"slide-master/handler"
	"slide-master/internal/artifact"
	"slide-master/internal/bot"
	"slide-master/internal/config"
	"slide-master/internal/integrations/gemini"
	"slide-master/internal/integrations/objectstore"
	"slide-master/internal/integrations/openai"
	"slide-master/internal/integrations/paramstore"
	"slide-master/internal/integrations/telegram"
	"slide-master/internal/repository"
	"slide-master/internal/usecase"
)

// grantStore is implemented by every account backend.
type grantStore interface {
	usecase.AccountStore
	SetUnlimited(ctx context.Context, requesterID string, unlimited bool) error
}

// app holds the wired service and the resources to release on shutdown.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	bot     *bot.Bot
	handler *handler.Handler

	awsCfg  *aws.Config
	closers []func(context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", "err", err)
		}
	}
}

func (a *app) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

// buildApp wires every component selected by cfg. async makes the bot run
// generations in the background.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, async bool) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if err := cfg.RequireSecrets(); err != nil {
		return nil, err
	}

	modelParam := cfg.Model.TokenParameter
	if modelParam == "" {
		modelParam = openai.DefaultTokenParameter
		if cfg.Model.Provider == "gemini" {
			modelParam = gemini.DefaultTokenParameter
		}
	}
	secrets, err := a.secrets(ctx, modelParam)
	if err != nil {
		return nil, err
	}

	accounts, err := a.accounts(ctx)
	if err != nil {
		return nil, err
	}
	inflight, topics, err := a.state(ctx)
	if err != nil {
		return nil, err
	}
	anomalies, err := a.anomalies(ctx)
	if err != nil {
		return nil, err
	}

	var model usecase.ModelClient
	switch cfg.Model.Provider {
	case "gemini":
		model, err = gemini.NewClient(secrets, modelParam,
			gemini.WithBaseURL(cfg.Model.BaseURL),
			gemini.WithModel(cfg.Model.Name),
		)
	default:
		model, err = openai.NewClient(secrets, modelParam,
			openai.WithBaseURL(cfg.Model.BaseURL),
			openai.WithModel(cfg.Model.Name),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	tg, err := telegram.NewClient(secrets, cfg.Bot.TokenParameter)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}
	delivery, err := a.delivery(ctx, tg)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.NewManager(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("create artifact manager: %w", err)
	}

	progress := bot.NewProgress(tg, log)
	deps := usecase.Dependencies{
		Model:     model,
		Accounts:  accounts,
		InFlight:  inflight,
		Delivery:  delivery,
		Artifacts: artifacts,
		Progress:  progress,
		Pool:      usecase.NewPool(cfg.Engine.Workers),
		Logger:    log,
	}
	if anomalies != nil {
		deps.Anomalies = anomalies
	}
	engine, err := usecase.NewEngine(deps, usecase.EngineConfig{
		SlideCounts:  cfg.Engine.SlideCounts,
		ModelTimeout: cfg.Model.Timeout,
		Brand:        cfg.Engine.Brand,
		Caption:      bot.Caption,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	a.bot, err = bot.New(bot.Dependencies{
		Messenger: tg,
		Generator: engine,
		Accounts:  accounts,
		Topics:    topics,
		Progress:  progress,
		Logger:    log,
	}, bot.Config{
		StartingBalance: cfg.Bot.StartingBalance,
		ReferralBonus:   cfg.Bot.ReferralBonus,
		Username:        cfg.Bot.Username,
		Async:           async,
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.bot.Wait()
		return nil
	})

	a.handler, err = handler.NewHandler(a.bot, cfg.HTTP.WebhookSecret, log)
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}
	return a, nil
}

func (a *app) secrets(ctx context.Context, modelParam string) (paramstore.Getter, error) {
	if a.cfg.Secrets.ParamPrefix == "" {
		return paramstore.Static{
			a.cfg.Bot.TokenParameter: a.cfg.Secrets.BotToken,
			modelParam:               a.cfg.Secrets.ModelAPIKey,
		}, nil
	}
	awsCfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}
	client, err := paramstore.New(awsssm.NewFromConfig(awsCfg), a.cfg.Secrets.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("create SSM client: %w", err)
	}
	return client, nil
}

func (a *app) accounts(ctx context.Context) (grantStore, error) {
	switch a.cfg.Accounts.Backend {
	case "dynamodb":
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewDynamoAccounts(awsdynamodb.NewFromConfig(awsCfg), a.cfg.Accounts.Table)
		if err != nil {
			return nil, fmt.Errorf("create account store: %w", err)
		}
		return store, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, a.cfg.Accounts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		store, err := repository.NewPostgresAccounts(pool)
		if err != nil {
			return nil, fmt.Errorf("create account store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		a.log.Warn("using in-memory account store; balances are lost on restart")
		return repository.NewMemoryAccounts(), nil
	}
}

func (a *app) state(ctx context.Context) (usecase.InFlightGuard, bot.TopicStore, error) {
	if a.cfg.State.Backend != "redis" {
		return repository.NewMemoryInFlight(), repository.NewMemoryTopics(a.cfg.State.TopicTTL), nil
	}
	rdb, err := repository.NewRedisClient(ctx, a.cfg.State.RedisAddr, a.cfg.State.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	inflight, err := repository.NewRedisInFlight(rdb, a.cfg.State.Prefix, a.cfg.State.InFlightTTL)
	if err != nil {
		return nil, nil, err
	}
	topics, err := repository.NewRedisTopics(rdb, a.cfg.State.Prefix, a.cfg.State.TopicTTL)
	if err != nil {
		return nil, nil, err
	}
	return inflight, topics, nil
}

// anomalies returns nil when no ledger is configured; the engine then only
// logs anomalies.
func (a *app) anomalies(ctx context.Context) (*repository.MongoAnomalies, error) {
	if a.cfg.Anomalies.MongoURI == "" {
		return nil, nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.cfg.Anomalies.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	a.closers = append(a.closers, client.Disconnect)
	return repository.NewMongoAnomalies(client.Database(a.cfg.Anomalies.MongoDB)), nil
}

func (a *app) delivery(ctx context.Context, tg *telegram.Client) (usecase.DeliveryChannel, error) {
	mode := a.cfg.Delivery.Mode
	if mode == "document" {
		return tg, nil
	}
	mc := a.cfg.Delivery.Minio
	storeCfg := objectstore.Config{
		Endpoint:  mc.Endpoint,
		AccessKey: mc.AccessKey,
		SecretKey: mc.SecretKey,
		Bucket:    mc.Bucket,
		UseSSL:    mc.UseSSL,
		LinkTTL:   mc.LinkTTL,
	}
	client, err := objectstore.NewMinioClient(ctx, storeCfg)
	if err != nil {
		return nil, err
	}
	var primary objectstore.Deliverer
	if mode == "auto" {
		primary = tg
	}
	d, err := objectstore.NewLinkDelivery(client, tg, storeCfg, primary, a.log)
	if err != nil {
		return nil, fmt.Errorf("create link delivery: %w", err)
	}
	return d, nil
}
