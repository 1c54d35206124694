package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/NikhilRaikwar/Nexis/internal/agent"
	"github.com/NikhilRaikwar/Nexis/internal/api"
	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/chain/evm"
	"github.com/NikhilRaikwar/Nexis/internal/chain/solana"
	"github.com/NikhilRaikwar/Nexis/internal/config"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm/openai"
	"github.com/NikhilRaikwar/Nexis/internal/observability/metrics"
	"github.com/NikhilRaikwar/Nexis/internal/price"
	"github.com/NikhilRaikwar/Nexis/internal/records"
	"github.com/NikhilRaikwar/Nexis/internal/tools"
	"github.com/NikhilRaikwar/Nexis/internal/wallet"
	"github.com/NikhilRaikwar/Nexis/pkg/logger"
)

// main 是 Nexis 守护进程的入口。
func main() {
	configPath := flag.String("config", "", "配置文件路径，留空时读取 NEXIS_CONFIG")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("nexisd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logr := logger.Named("nexisd")

	registry, err := chain.LoadRegistry(cfg.Chains.RegistryPath)
	if err != nil {
		return err
	}
	catalog, err := chain.LoadCatalog(cfg.Chains.TokensPath)
	if err != nil {
		return err
	}

	model, err := openai.NewClient(openai.Config{
		APIKey:  cfg.Model.APIKey(),
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Model,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		return err
	}

	priceClient := buildPriceClient(cfg)

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logr.Warn("关闭事件发布器失败", "error", err)
		}
	}()

	store, err := buildRecordStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logr.Warn("关闭转账记录存储失败", "error", err)
		}
	}()

	wallets := wallet.NewManager(registry, wallet.WithSessionTTL(cfg.Runtime.SessionTTL))
	engine := agent.New(model, tools.DefaultSet(),
		agent.WithMaxRounds(cfg.Runtime.MaxRounds),
		agent.WithModelTimeout(cfg.Model.Timeout),
		agent.WithLogger(logger.Named("agent")),
	)

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logr.Warn("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, engine, api.Dependencies{
		Registry:  registry,
		Catalog:   catalog,
		Wallets:   wallets,
		EVM:       evm.NewDialer(),
		Solana:    solana.NewDialer(),
		Prices:    priceClient,
		Extractor: model,
		Events:    publisher,
		Records:   store,
	}, api.WithRequestTimeout(cfg.Server.RequestTimeout))

	logr.Info("nexisd 启动", "address", cfg.Server.Address, "chains", registry.Keys())
	return server.Start(ctx)
}

func buildPriceClient(cfg *config.Config) *price.Client {
	var opts []price.Option
	switch cfg.Price.CacheDriver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Price.RedisAddr})
		opts = append(opts, price.WithCache(price.NewRedisCache(client), cfg.Price.CacheTTL))
	case "none":
	default:
		opts = append(opts, price.WithCache(price.NewMemoryCache(), cfg.Price.CacheTTL))
	}
	return price.NewClient(price.Config{
		BaseURL:  cfg.Price.BaseURL,
		Currency: cfg.Price.Currency,
	}, opts...)
}

func buildPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "memory":
		return events.NewMemoryPublisher(0), nil
	case "redis":
		return events.NewRedisPublisher(events.RedisConfig{
			Address: cfg.Events.RedisAddr,
			Stream:  cfg.Events.Queue,
		})
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.Events.AMQPURL,
			Queue:   cfg.Events.Queue,
			Durable: true,
		})
	case "none":
		return events.NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
}

func buildRecordStore(cfg *config.Config) (records.Store, error) {
	switch cfg.Records.Driver {
	case "", "memory":
		dir := cfg.Records.Path
		if dir == "" {
			dir = filepath.Join(cfg.Runtime.DataDir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return records.NewMemoryStore(dir)
	case "mysql":
		return records.NewSQLStore(cfg.Records.DSN)
	case "none":
		return records.NopStore{}, nil
	default:
		return nil, fmt.Errorf("未知的转账记录驱动: %s", cfg.Records.Driver)
	}
}
