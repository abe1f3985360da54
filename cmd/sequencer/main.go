package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vocdoni/commit-reveal-sequencer/api"
	"github.com/vocdoni/commit-reveal-sequencer/config"
	"github.com/vocdoni/commit-reveal-sequencer/crypto/ethereum"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/ledger/memledger"
	web3ledger "github.com/vocdoni/commit-reveal-sequencer/ledger/web3"
	"github.com/vocdoni/commit-reveal-sequencer/registry"
	"github.com/vocdoni/commit-reveal-sequencer/service"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/verify"
	"github.com/vocdoni/commit-reveal-sequencer/voting"
	"github.com/vocdoni/commit-reveal-sequencer/web3/rpc"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/log"
	"gopkg.in/urfave/cli.v1"
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:   "host",
		Value:  config.DefaultHost,
		EnvVar: "SEQUENCER_HOST",
		Usage:  "API listen host",
	},
	cli.IntFlag{
		Name:   "port, p",
		Value:  config.DefaultPort,
		EnvVar: "SEQUENCER_PORT",
		Usage:  "API listen port",
	},
	cli.StringFlag{
		Name:   "datadir, d",
		Value:  config.DefaultDataDir,
		EnvVar: "SEQUENCER_DATADIR",
		Usage:  "data directory",
	},
	cli.StringFlag{
		Name:   "dbtype",
		Value:  config.Default().DBType,
		EnvVar: "SEQUENCER_DBTYPE",
		Usage:  "database backend (pebble or leveldb)",
	},
	cli.StringFlag{
		Name:   "loglevel, l",
		Value:  config.DefaultLogLevel,
		EnvVar: "SEQUENCER_LOGLEVEL",
		Usage:  "log level (debug, info, warn, error)",
	},
	cli.StringFlag{
		Name:   "logoutput",
		Value:  config.DefaultLogOutput,
		EnvVar: "SEQUENCER_LOGOUTPUT",
		Usage:  "log output (stdout, stderr or a file path)",
	},
	cli.StringSliceFlag{
		Name:   "web3",
		EnvVar: "SEQUENCER_WEB3",
		Usage:  "web3 RPC endpoint, can be repeated (enables the chain ledger)",
	},
	cli.StringFlag{
		Name:   "anchor",
		EnvVar: "SEQUENCER_ANCHOR",
		Usage:  "address receiving the anchoring transactions (defaults to the sender)",
	},
	cli.StringFlag{
		Name:   "privkey",
		EnvVar: "SEQUENCER_PRIVKEY",
		Usage:  "hex private key signing the anchoring transactions",
	},
	cli.DurationFlag{
		Name:   "ledgerTimeout",
		Value:  config.DefaultLedgerTimeout,
		EnvVar: "SEQUENCER_LEDGER_TIMEOUT",
		Usage:  "maximum time a ledger submission may take",
	},
	cli.DurationFlag{
		Name:   "monitorInterval",
		Value:  config.DefaultMonitorInterval,
		EnvVar: "SEQUENCER_MONITOR_INTERVAL",
		Usage:  "interval between checks for elections whose voting window ended",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "sequencer"
	app.Usage = "commit-reveal election sequencer anchoring votes on a ledger"
	app.Flags = flags
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("sequencer failed: %v", err)
	}
}

func configFromContext(ctx *cli.Context) (*config.Config, error) {
	conf := config.Default()
	conf.Host = ctx.String("host")
	conf.Port = ctx.Int("port")
	conf.DataDir = ctx.String("datadir")
	conf.DBType = ctx.String("dbtype")
	conf.LogLevel = ctx.String("loglevel")
	conf.LogOutput = ctx.String("logoutput")
	conf.Web3Endpoints = ctx.StringSlice("web3")
	conf.AnchorAddress = ctx.String("anchor")
	conf.PrivateKey = ctx.String("privkey")
	conf.DevLedger = len(conf.Web3Endpoints) == 0
	conf.LedgerTimeout = ctx.Duration("ledgerTimeout")
	conf.MonitorInterval = ctx.Duration("monitorInterval")
	if strings.HasPrefix(conf.DataDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not resolve home directory: %w", err)
		}
		conf.DataDir = filepath.Join(home, strings.TrimPrefix(conf.DataDir, "~"))
	}
	return conf, conf.Validate()
}

func run(cliCtx *cli.Context) error {
	conf, err := configFromContext(cliCtx)
	if err != nil {
		return err
	}
	log.Init(conf.LogLevel, conf.LogOutput, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	database, err := metadb.New(conf.DBType, filepath.Join(conf.DataDir, "db"))
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	l, err := newLedger(ctx, conf)
	if err != nil {
		return err
	}

	machine := election.New(stg)
	reg := registry.New(stg, machine)
	engine := voting.New(stg, machine, reg, l, conf.LedgerTimeout)
	recovered, err := engine.RecoverPending(ctx)
	if err != nil {
		return fmt.Errorf("could not recover pending submissions: %w", err)
	}
	if recovered > 0 {
		log.Warnw("rolled back submissions interrupted by a previous run", "count", recovered)
	}

	apiService := service.NewAPI(&api.APIConfig{
		Host:     conf.Host,
		Port:     conf.Port,
		Storage:  stg,
		Machine:  machine,
		Registry: reg,
		Engine:   engine,
		Verifier: verify.New(stg, l),
	})
	if err := apiService.Start(ctx); err != nil {
		return err
	}
	defer apiService.Stop()

	monitor := service.NewWindowMonitor(machine, conf.MonitorInterval)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	log.Infow("sequencer started",
		"api", apiService.Addr(),
		"datadir", conf.DataDir,
		"ledger", l.Address().Hex(),
		"devLedger", conf.DevLedger)
	<-ctx.Done()
	log.Infow("shutting down")
	return nil
}

// newLedger returns the in-memory ledger in dev mode, otherwise a chain
// ledger over the pool of web3 endpoints.
func newLedger(ctx context.Context, conf *config.Config) (ledger.Ledger, error) {
	if conf.DevLedger {
		log.Warnw("using the in-memory ledger, anchored votes are lost on restart")
		return memledger.New(conf.Anchor()), nil
	}
	pool := rpc.NewWeb3Pool()
	var chainID uint64
	for _, uri := range conf.Web3Endpoints {
		id, err := pool.AddEndpoint(uri)
		if err != nil {
			return nil, err
		}
		if chainID != 0 && id != chainID {
			return nil, fmt.Errorf("endpoint %s serves chain %d, expected %d", uri, id, chainID)
		}
		chainID = id
	}
	client, err := pool.Client(chainID)
	if err != nil {
		return nil, err
	}
	signer := ethereum.NewSignKeys()
	if err := signer.AddHexKey(conf.PrivateKey); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return web3ledger.New(ctx, client, signer, conf.Anchor())
}
