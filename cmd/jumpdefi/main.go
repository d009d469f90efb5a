// ====================================
// File: cmd/jumpdefi/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/app"
	"github.com/jumpfinance/jumpdefi/internal/config"
	"github.com/jumpfinance/jumpdefi/internal/export"
	"github.com/jumpfinance/jumpdefi/internal/logger"
	"github.com/jumpfinance/jumpdefi/internal/report"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

const usage = `Usage: jumpdefi [command] [flags]

Commands:
  report               show the vault overview (default)
  positions <account>  show the stakes of an account
  history <contract> <vault-id>
                       show stored APR snapshots of a vault (needs postgres_url)
  apr                  compute the APR of a vault described by flags
  watch                poll prices, refresh vaults and store snapshots

Flags:
`

type flags struct {
	configPath string
	debug      bool

	format        string
	output        string
	contract      string
	onlyAvailable bool
	persist       bool

	metricsAddr string
	history     string
	render      bool

	since time.Duration
	limit int

	stakeToken     string
	stakeDecimals  uint8
	rewardToken    string
	rewardDecimals uint8
	apr            string
	maxFill        string
	filled         string
	lockDays       int
	stakePrice     string
	rewardPrice    string
	staked         string
	rewardRate     string
	readable       bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("jumpdefi", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	fs.StringVarP(&f.configPath, "config", "c", "", "config file (yaml, json or toml)")
	fs.BoolVar(&f.debug, "debug", false, "debug logging")

	fs.StringVarP(&f.format, "format", "f", "", "export format: csv, json, markdown, yaml (default: table)")
	fs.StringVarP(&f.output, "output", "o", "", `export directory, "-" for stdout (default: export_dir)`)
	fs.StringVar(&f.contract, "contract", "", "only vaults of this contract")
	fs.BoolVar(&f.onlyAvailable, "only-available", false, "only vaults with a computed APR")
	fs.BoolVar(&f.persist, "persist", false, "store a snapshot when postgres_url is set")

	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (watch)")
	fs.StringVar(&f.history, "history", "", "append APR history to this CSV file (watch)")
	fs.BoolVar(&f.render, "render", false, "print the table after every refresh (watch)")

	fs.DurationVar(&f.since, "since", 7*24*time.Hour, "how far back to look (history)")
	fs.IntVar(&f.limit, "limit", 0, "maximum number of snapshots, 0 for the default (history)")

	fs.StringVar(&f.stakeToken, "stake-token", "xjumptoken.jumpfinance.near", "stake token id (apr)")
	fs.Uint8Var(&f.stakeDecimals, "stake-decimals", 18, "stake token decimals (apr)")
	fs.StringVar(&f.rewardToken, "reward-token", "blackdragon.tkn.near", "reward token id (apr)")
	fs.Uint8Var(&f.rewardDecimals, "reward-decimals", 24, "reward token decimals (apr)")
	fs.StringVar(&f.apr, "apr", "", "raw apr field of the vault (apr)")
	fs.StringVar(&f.maxFill, "max-fill", "", "raw max fill amount (apr)")
	fs.StringVar(&f.filled, "filled", "0", "raw filled amount (apr)")
	fs.IntVar(&f.lockDays, "lock-days", 28, "lock duration in days (apr)")
	fs.StringVar(&f.stakePrice, "stake-price", "", "USD price of the stake token (apr)")
	fs.StringVar(&f.rewardPrice, "reward-price", "", "USD price of the reward token (apr)")
	fs.StringVar(&f.staked, "staked", "", "raw staked amount for a reward estimate (apr)")
	fs.StringVar(&f.rewardRate, "reward-rate", "", "raw stake_reward_rate for a reward estimate (apr)")
	fs.BoolVar(&f.readable, "readable", false, "max-fill, filled and staked are in whole tokens (apr)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "jumpdefi:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	command := fs.Arg(0)
	if command == "" {
		command = "report"
	}

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return err
	}

	// apr needs no network, only the liquid staking settings
	if command == "apr" {
		return runAPR(cfg, f)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging || f.debug
	logCfg.Console = os.Stderr
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log.WithComponent("jumpdefi"), app.Options{Out: os.Stdout})
	if err != nil {
		log.LogError("Failed to start", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.LogError("Shutdown completed with errors", err)
		}
	}()

	switch command {
	case "report":
		return runReport(ctx, a, log, f)
	case "positions":
		account := fs.Arg(1)
		if account == "" {
			return errors.New("positions: account id required")
		}
		done := log.TrackPerformance("positions")
		defer done()
		return a.Positions(ctx, account)
	case "history":
		return runHistory(ctx, a, fs, f)
	case "watch":
		return a.Watch(ctx, app.WatchOptions{
			MetricsAddr: f.metricsAddr,
			HistoryFile: f.history,
			Render:      f.render,
		})
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runReport(ctx context.Context, a *app.App, log *logger.Logger, f *flags) error {
	opts := app.ReportOptions{
		OutputDir:     f.output,
		Contract:      f.contract,
		OnlyAvailable: f.onlyAvailable,
		Persist:       f.persist,
	}
	if f.format != "" && f.format != "table" {
		format, err := export.ParseFormat(f.format)
		if err != nil {
			return err
		}
		opts.Format = format
	}

	done := log.TrackPerformance("report")
	defer done()

	path, err := a.Report(ctx, opts)
	if err != nil {
		return err
	}
	if path != "" {
		log.Info("Report exported", zap.String("file", path))
	}
	return nil
}

func runHistory(ctx context.Context, a *app.App, fs *pflag.FlagSet, f *flags) error {
	if fs.NArg() < 3 {
		return errors.New("history: contract and vault id required")
	}
	vaultID, err := strconv.ParseInt(fs.Arg(2), 10, 64)
	if err != nil {
		return fmt.Errorf("history: vault id %q: %w", fs.Arg(2), err)
	}
	return a.History(ctx, app.HistoryOptions{
		Contract: fs.Arg(1),
		VaultID:  vaultID,
		Since:    time.Now().Add(-f.since),
		Limit:    f.limit,
	})
}

func runAPR(cfg *config.Config, f *flags) error {
	if f.apr == "" || f.maxFill == "" {
		return errors.New("apr: --apr and --max-fill are required")
	}
	pairs, err := app.CalculateAPR(cfg.Staking(), app.APRInput{
		StakeToken:  types.TokenRef{ID: f.stakeToken, Decimals: types.Decimals(f.stakeDecimals)},
		RewardToken: types.TokenRef{ID: f.rewardToken, Decimals: types.Decimals(f.rewardDecimals)},
		APR:         f.apr,
		MaxFill:     f.maxFill,
		Filled:      f.filled,
		Lock:        time.Duration(f.lockDays) * 24 * time.Hour,
		StakePrice:  f.stakePrice,
		RewardPrice: f.rewardPrice,
		Staked:      f.staked,
		RewardRate:  f.rewardRate,
		Readable:    f.readable,
	})
	if err != nil {
		return err
	}
	return report.New(os.Stdout).KeyValues("APR", pairs)
}
