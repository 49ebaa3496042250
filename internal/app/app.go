// Package app wires a workspace into a running engine: database, migrations,
// config, chain client, oracle, reconciler.
package app

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JermWang/hodler-sub004/internal/chain"
	"github.com/JermWang/hodler-sub004/internal/config"
	"github.com/JermWang/hodler-sub004/internal/db"
	"github.com/JermWang/hodler-sub004/internal/engine"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/logger"
	"github.com/JermWang/hodler-sub004/internal/migrate"
	"github.com/JermWang/hodler-sub004/internal/oracle"
	"github.com/JermWang/hodler-sub004/internal/reconcile"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

// OperatorKeyEnv names the env var holding the base58 operator private key.
// It never goes in the config file.
const OperatorKeyEnv = "HODLER_OPERATOR_KEY"

type App struct {
	DB         *sql.DB
	Config     *config.Config
	Engine     engine.Engine
	Reconciler reconcile.Reconciler
	Log        zerolog.Logger
}

// Open builds the full application from a workspace directory.
func Open(workspace string, log zerolog.Logger) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "load config")
	}

	var cl chain.Client = chain.Unconfigured{}
	if raw := os.Getenv(OperatorKeyEnv); raw != "" {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "parse operator key")
		}
		cl = chain.NewRPC(cfg.Chain.RPCEndpoint, key, cfg.Chain.Commitment, log)
	} else {
		alog := logger.Component(log, "app")
		alog.Warn().Msg("no operator key in environment, payouts disabled")
	}

	// Holding values are proxied by on-chain balance until a price feed is
	// attached; the cache keeps accrual passes from hammering the RPC.
	src := oracle.SourceFunc(func(ctx context.Context, wallet, mint string) (uint64, error) {
		return cl.Balance(ctx, wallet)
	})
	cached, err := oracle.NewCached(src, 4096, 5*time.Minute, log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn}
	eng := engine.Engine{
		DB:     conn,
		Repo:   r,
		Events: ev,
		Config: cfg,
		Chain:  cl,
		Oracle: cached,
		Log:    logger.Component(log, "engine"),
	}
	rec := reconcile.Reconciler{
		DB:     conn,
		Repo:   r,
		Events: ev,
		Chain:  cl,
		Log:    logger.Component(log, "reconcile"),
	}
	return &App{
		DB:         conn,
		Config:     cfg,
		Engine:     eng,
		Reconciler: rec,
		Log:        log,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
