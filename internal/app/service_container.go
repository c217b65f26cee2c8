package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"stealth-backend/internal/amm"
	"stealth-backend/internal/batch"
	"stealth-backend/internal/clients"
	"stealth-backend/internal/config"
	"stealth-backend/internal/db"
	"stealth-backend/internal/enclave"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/metrics"
	"stealth-backend/internal/repository"
	"stealth-backend/internal/services"
)

// fallbackOwner administers the ledger when bootstrap.owner is unset.
var fallbackOwner = common.BytesToAddress(crypto.Keccak256([]byte("stealth-settlement/owner")))

// ServiceContainer wires the relay process.
type ServiceContainer struct {
	Config *config.Config

	// Database (nil when database.dsn is empty)
	DB          *gorm.DB
	IntentRepo  repository.IntentRepository
	ReleaseRepo repository.ReleaseRepository
	BatchRepo   repository.BatchRepository
	EventRepo   repository.EventRepository

	// Core
	Owner    common.Address
	Ledger   *ledger.Ledger
	AMM      *amm.Router
	Computer enclave.Computer

	// Event sinks
	Hub     *services.EventHub
	Metrics *services.MetricsService
	NATS    *clients.NATSPublisher
	Indexer *services.LedgerIndexer

	// Background services
	Relay      *services.SettlementService
	Keeper     *services.ReleaseKeeper
	ChainClock *clients.ChainClock

	cancel context.CancelFunc
}

// NewServiceContainer builds every component from cfg. Database and NATS are
// optional; the enclave is not.
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	logrus.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{Config: cfg, Owner: fallbackOwner}

	if cfg.Bootstrap.Owner != "" {
		if !common.IsHexAddress(cfg.Bootstrap.Owner) {
			return nil, fmt.Errorf("bootstrap.owner: invalid address %q", cfg.Bootstrap.Owner)
		}
		c.Owner = common.HexToAddress(cfg.Bootstrap.Owner)
	} else {
		logrus.WithField("owner", c.Owner.Hex()).Warn("⚠️ bootstrap.owner not set, using derived owner address")
	}

	clock := time.Now
	if cfg.Chain.UseChainClock && cfg.Chain.RPCURL != "" {
		cc, err := clients.DialChainClock(ctx, cfg.Chain.RPCURL, 0)
		if err != nil {
			return nil, err
		}
		c.ChainClock = cc
		clock = cc.Now
		logrus.Info("⛓️ Using chain head time as ledger clock")
	}

	signer, err := c.initEnclave(ctx, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enclave: %w", err)
	}

	c.AMM = amm.NewRouter(cfg.AMM.FeeBps)
	c.Ledger = ledger.New(c.Owner, signer,
		ledger.WithClock(clock),
		ledger.WithDelayBounds(cfg.Settlement.MinDelayDuration(), cfg.Settlement.MaxDelayDuration()),
		ledger.WithSwapExecutor(c.AMM),
	)
	if err := services.Bootstrap(c.Ledger, c.AMM, *cfg); err != nil {
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}

	c.Hub = services.NewEventHub(0)
	c.Metrics = services.NewMetricsService(c.Ledger)
	c.Ledger.AddEventSink(c.Metrics)
	c.Ledger.AddEventSink(c.Hub)

	if err := c.initDatabase(cfg.Database); err != nil {
		return nil, err
	}
	c.initNATS(cfg.NATS)

	c.Relay = services.NewSettlementService(c.Ledger, c.Computer, services.RelayConfig{
		Interval:     cfg.Settlement.BatchIntervalDuration(),
		MaxBatchSize: cfg.Settlement.MaxBatchSize,
		Timeout:      time.Duration(cfg.Enclave.Timeout) * time.Second,
		Quarantine:   cfg.Settlement.QuarantineDuration(),
	})
	c.Keeper = services.NewReleaseKeeper(c.Ledger, cfg.Settlement.KeeperIntervalDuration())

	logrus.WithFields(logrus.Fields{
		"owner":          c.Owner.Hex(),
		"enclave_signer": signer.Hex(),
		"indexer":        c.Indexer != nil,
		"nats":           c.NATS != nil,
	}).Info("✅ Service Container initialized successfully")
	return c, nil
}

// initEnclave selects the batch computer and returns the address the ledger
// must trust.
func (c *ServiceContainer) initEnclave(ctx context.Context, clock func() time.Time) (common.Address, error) {
	cfg := c.Config
	enclaveCfg := enclave.Config{
		MinDelay:        cfg.Settlement.MinDelayDuration(),
		MaxDelay:        cfg.Settlement.MaxDelayDuration(),
		SubmissionSlack: cfg.Settlement.SubmissionSlackDuration(),
		Workers:         cfg.Settlement.WrapWorkers,
	}

	switch {
	case cfg.Enclave.RemoteURL != "":
		client := clients.NewEnclaveClient(cfg.Enclave)
		addr, err := client.SignerAddress(ctx)
		if err != nil {
			return common.Address{}, err
		}
		c.Computer = client
		logrus.WithField("url", cfg.Enclave.RemoteURL).Info("🔐 Using remote enclave")
		return addr, nil

	case cfg.Enclave.PrivateKey != "":
		signer, err := batch.NewPrivateKeySignerFromHex(cfg.Enclave.PrivateKey)
		if err != nil {
			return common.Address{}, err
		}
		e, err := enclave.New(signer, enclaveCfg, enclave.WithClock(clock))
		if err != nil {
			return common.Address{}, err
		}
		c.Computer = e
		logrus.Info("🔐 Using in-process enclave")
		return signer.Address(), nil
	}
	return common.Address{}, fmt.Errorf("enclave.privateKey or enclave.remoteUrl is required")
}

func (c *ServiceContainer) initDatabase(cfg config.DatabaseConfig) error {
	if cfg.DSN == "" {
		metrics.DBConnectionStatus.Set(0)
		logrus.Warn("⚠️ database.dsn not set, history endpoints disabled")
		return nil
	}

	gdb, err := db.InitDB(cfg)
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	metrics.DBConnectionStatus.Set(1)

	logrus.Info("📦 Initializing Repositories...")
	c.DB = gdb
	c.IntentRepo = repository.NewIntentRepository(gdb)
	c.ReleaseRepo = repository.NewReleaseRepository(gdb)
	c.BatchRepo = repository.NewBatchRepository(gdb)
	c.EventRepo = repository.NewEventRepository(gdb)

	c.Indexer = services.NewLedgerIndexer(c.IntentRepo, c.ReleaseRepo, c.BatchRepo, c.EventRepo)
	c.Ledger.AddEventSink(c.Indexer)
	return nil
}

// initNATS is best effort: a broker outage must not stop settlement.
func (c *ServiceContainer) initNATS(cfg config.NATSConfig) {
	if cfg.URL == "" {
		return
	}
	pub, err := clients.NewNATSPublisher(cfg)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ NATS unavailable, ledger events will not be published")
		return
	}
	c.NATS = pub
	c.Ledger.AddEventSink(pub)
}

// Start launches the background services.
func (c *ServiceContainer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if c.ChainClock != nil {
		go c.ChainClock.Run(ctx)
	}
	if c.Indexer != nil {
		c.Indexer.Start()
	}
	c.Relay.Start()
	c.Keeper.Start()
}

// Stop shuts background services down in reverse dependency order.
func (c *ServiceContainer) Stop() {
	c.Relay.Stop()
	c.Keeper.Stop()
	if c.Indexer != nil {
		c.Indexer.Stop()
	}
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.ChainClock != nil {
		c.ChainClock.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logrus.Info("👋 Services stopped")
}
