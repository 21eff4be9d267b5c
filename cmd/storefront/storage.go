package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	storegrpc "github.com/fjod/storefront/internal/grpc"
	"github.com/fjod/storefront/internal/ledger"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/postgres"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// memoryStock mirrors the postgres stock seed so both backends start equal.
var memoryStock = map[int64]int{1: 100, 2: 50, 3: 25, 4: 10, 5: 0}

type stores struct {
	catalog  *catalog.Repository
	ledger   ledger.Ledger
	orders   order.Repository
	payments payment.Repository
	carts    cart.Repository
	cache    cart.Cache
	cfg      *config.Config

	db    *sql.DB
	mongo *mongo.Database
	redis *redis.Client
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *stores, err error) {
	st := &stores{cfg: cfg, cache: cart.NopCache{}}
	defer func() {
		if err != nil {
			st.close(logger)
		}
	}()

	if st.catalog, err = catalog.NewRepository(cfg.CatalogDBPath); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err = st.catalog.RunMigrations(cfg.CatalogMigrations); err != nil {
		return nil, fmt.Errorf("catalog migrations: %w", err)
	}
	logger.Info("catalog ready", zap.String("path", cfg.CatalogDBPath))

	switch cfg.Storage {
	case config.StoragePostgres:
		if err = st.openPostgres(ctx, logger); err != nil {
			return nil, err
		}
	default:
		if err = st.openMemory(ctx, logger); err != nil {
			return nil, err
		}
	}

	if cfg.MongoURI != "" {
		if st.mongo, err = cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			return nil, err
		}
		repo := cart.NewMongoRepository(st.mongo)
		if err = repo.CreateIndexes(ctx); err != nil {
			return nil, fmt.Errorf("cart indexes: %w", err)
		}
		st.carts = repo
		logger.Info("carts stored in mongodb", zap.String("database", cfg.MongoDB))
	} else {
		st.carts = cart.NewMemoryRepository()
	}

	if cfg.RedisAddr != "" {
		st.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err = st.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cacheCfg := cart.DefaultRedisCacheConfig()
		cacheCfg.UserTTL = cfg.CartCacheTTL
		cacheCfg.GuestTTL = cfg.GuestCartCacheTTL
		st.cache = cart.NewRedisCache(st.redis, cacheCfg)
		logger.Info("cart cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	return st, nil
}

func (st *stores) openPostgres(ctx context.Context, logger *zap.Logger) error {
	port, err := strconv.Atoi(st.cfg.DBPort)
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cred := postgres.Credentials{
		Host:              st.cfg.DBHost,
		Port:              port,
		User:              st.cfg.DBUser,
		Password:          st.cfg.DBPassword,
		DBName:            st.cfg.DBName,
		MigrationsDirPath: st.cfg.MigrationsDir,
	}

	if st.db, err = postgres.Open(ctx, cred); err != nil {
		return err
	}
	if err = postgres.RunMigrations(st.db, cred.MigrationsDirPath); err != nil {
		return err
	}
	logger.Info("postgres migrations completed", zap.String("host", cred.Host), zap.String("db", cred.DBName))

	st.ledger = postgres.NewLedger(st.db)
	st.orders = postgres.NewOrderRepository(st.db)
	st.payments = postgres.NewPaymentRepository(st.db)
	return nil
}

func (st *stores) openMemory(ctx context.Context, logger *zap.Logger) error {
	products, err := st.catalog.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("seed stock: %w", err)
	}

	l := ledger.NewMemoryLedger()
	for _, p := range products {
		if err := l.SetStock(ctx, p.ID, memoryStock[p.ID], p.Active); err != nil {
			return fmt.Errorf("seed stock for product %d: %w", p.ID, err)
		}
	}
	logger.Info("in-memory storage seeded", zap.Int("products", len(products)))

	st.ledger = l
	st.orders = order.NewMemoryRepository()
	st.payments = payment.NewMemoryRepository()
	return nil
}

func (st *stores) cartService(logger *zap.Logger) *cart.Service {
	return cart.NewService(st.carts, st.cache, st.catalog, st.ledger, logger)
}

func (st *stores) healthChecks() map[string]storegrpc.Check {
	checks := map[string]storegrpc.Check{}
	if st.db != nil {
		checks["postgres"] = st.db.PingContext
	}
	if st.mongo != nil {
		checks["mongodb"] = func(ctx context.Context) error {
			return st.mongo.Client().Ping(ctx, nil)
		}
	}
	if st.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return st.redis.Ping(ctx).Err()
		}
	}
	return checks
}

func (st *stores) close(logger *zap.Logger) {
	if st.redis != nil {
		if err := st.redis.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if st.mongo != nil {
		if err := st.mongo.Client().Disconnect(context.Background()); err != nil {
			logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			logger.Warn("postgres close failed", zap.Error(err))
		}
	}
	if st.catalog != nil {
		if err := st.catalog.Close(); err != nil {
			logger.Warn("catalog close failed", zap.Error(err))
		}
	}
}
