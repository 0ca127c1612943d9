package svc

import (
	"log"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	"marketpulse-api/internal/assistant"
	"marketpulse-api/internal/breadth"
	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/internal/config"
	"marketpulse-api/internal/engine"
	"marketpulse-api/internal/ingest"
	"marketpulse-api/internal/model"
	"marketpulse-api/pkg/confkit"
	"marketpulse-api/pkg/journal"
	llmpkg "marketpulse-api/pkg/llm"
	marketpkg "marketpulse-api/pkg/market"
	_ "marketpulse-api/pkg/market/providers/eastmoney"
	"marketpulse-api/pkg/prompt"
)

type ServiceContext struct {
	Config config.Config

	MarketConfig    *marketpkg.Config
	MarketProviders map[string]marketpkg.Provider
	DefaultMarket   marketpkg.Provider

	LLMConfig *llmpkg.Config
	LLMClient *llmpkg.Client

	DBConn sqlx.SqlConn
	Redis  *redis.Redis
	Cache  gocache.Cache
	TTL    cachekeys.TTLSet

	InstrumentsModel model.InstrumentsModel
	BarsModel        model.BarsModel
	QuotesModel      model.QuotesModel

	Orchestrator *ingest.Orchestrator
	Engine       *engine.Engine
	Breadth      *breadth.Summarizer
	Assistant    *assistant.Assistant
	Journal      *journal.Writer
}

func NewServiceContext(c config.Config, mainConfigPath string) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	baseDir := confkit.BaseDir(mainConfigPath)

	// Market provider config is required: without it there is nothing to sync.
	marketCfg := c.Market.Value
	if marketCfg == nil && c.Market.File != "" {
		loaded, err := marketpkg.LoadConfig(confkit.ResolvePath(baseDir, c.Market.File))
		if err != nil {
			log.Fatalf("failed to load market config: %v", err)
		}
		marketCfg = loaded
	}
	if marketCfg == nil {
		marketCfg = config.MustLoadMarket()
	}
	providers, err := marketCfg.BuildProviders()
	if err != nil {
		log.Fatalf("failed to build market providers: %v", err)
	}
	svc.MarketConfig = marketCfg
	svc.MarketProviders = providers
	if marketCfg.Default != "" {
		svc.DefaultMarket = providers[marketCfg.Default]
	}

	// LLM is optional; the assistant endpoint reports unavailable without it.
	llmCfg := c.LLM.Value
	if llmCfg == nil && c.LLM.File != "" {
		loaded, err := llmpkg.LoadConfig(confkit.ResolvePath(baseDir, c.LLM.File))
		if err != nil {
			log.Fatalf("failed to load llm config: %v", err)
		}
		llmCfg = loaded
	}
	if llmCfg != nil {
		client, err := llmpkg.NewClient(llmCfg)
		if err != nil {
			log.Fatalf("failed to build llm client: %v", err)
		}
		svc.LLMConfig = llmCfg
		svc.LLMClient = client
	}

	if c.Redis.Host != "" {
		svc.Redis = redis.MustNewRedis(c.Redis)
		svc.Cache = gocache.NewNode(svc.Redis, syncx.NewSingleFlight(), gocache.NewStat("marketpulse"), model.ErrNotFound)
	}

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.InstrumentsModel = model.NewInstrumentsModel(conn, svc.Cache, svc.TTL)
		svc.BarsModel = model.NewBarsModel(conn, svc.Cache, svc.TTL)
		svc.QuotesModel = model.NewQuotesModel(conn, svc.Cache, svc.TTL)
	}

	if svc.DBConn != nil && svc.DefaultMarket != nil {
		svc.Journal = journal.NewWriter(filepath.Join(baseDir, "journal"))
		orchestrator, err := ingest.New(
			svc.DefaultMarket,
			svc.InstrumentsModel,
			svc.BarsModel,
			svc.QuotesModel,
			c.Sync,
			ingest.WithRedis(svc.Redis),
			ingest.WithJournal(svc.Journal),
			ingest.WithTTL(svc.TTL),
		)
		if err != nil {
			log.Fatalf("failed to build sync orchestrator: %v", err)
		}
		svc.Orchestrator = orchestrator

		svc.Engine = engine.New(svc.BarsModel, svc.Cache, svc.TTL)
		svc.Breadth = breadth.New(svc.QuotesModel)

		if svc.LLMClient != nil {
			svc.Assistant = assistant.New(
				svc.LLMClient,
				svc.InstrumentsModel,
				svc.QuotesModel,
				svc.Engine,
				svc.Breadth,
				loadAssistantTemplate(baseDir),
			)
		}
	}

	return svc
}

// loadAssistantTemplate picks up etc/prompts/assistant.tmpl when present.
func loadAssistantTemplate(baseDir string) *prompt.Template {
	path := filepath.Join(baseDir, "prompts", "assistant.tmpl")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	tmpl, err := prompt.NewTemplate(path)
	if err != nil {
		log.Printf("failed to parse assistant template %s: %v", path, err)
		return nil
	}
	return tmpl
}
