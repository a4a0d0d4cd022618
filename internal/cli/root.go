package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// DefaultOwner is the first prefunded account of a local development node.
const DefaultOwner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	StoreURL      string
	MongoDatabase string
	WalletsFile   string
	Network       string
	NetworksFile  string
	RPCURL        string

	logger *slog.Logger
}

// Logger returns the logger built for the running command.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// envDefaults maps flags to the environment variables that fill them when
// the flag is not given.
var envDefaults = map[string]string{
	"store":          "FUNDME_STORE_URL",
	"mongo-database": "FUNDME_MONGO_DATABASE",
	"wallets":        "FUNDME_WALLETS",
	"network":        "FUNDME_NETWORK",
	"networks-file":  "FUNDME_NETWORKS_FILE",
	"rpc-url":        "FUNDME_RPC_URL",
	"owner":          "FUNDME_OWNER",
	"minimum-usd":    "FUNDME_MINIMUM_USD",
}

// NewRootCommand creates the root command for the fundme CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fundme",
		Short: "Crowdfunding ledger with a USD contribution floor",
		Long: `fundme keeps a crowdfunding ledger: anyone may fund it with ETH worth
at least the minimum in USD, and only the owner may withdraw the balance.

Settings can also come from the environment or a .env file
(FUNDME_STORE_URL, FUNDME_NETWORK, FUNDME_OWNER, ...).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			_ = godotenv.Load(".env", ".env.local")
			if err := applyEnv(cmd); err != nil {
				return WrapExitError(ExitCommandError, "invalid environment", err)
			}

			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.StoreURL, "store", "sqlite://fundme.db",
		"ledger store (sqlite://path, postgres://..., mongodb://...)")
	cmd.PersistentFlags().StringVar(&opts.MongoDatabase, "mongo-database", "fundme", "database used with a mongodb store")
	cmd.PersistentFlags().StringVar(&opts.WalletsFile, "wallets", "fundme-wallets.yaml", "account balances file")
	cmd.PersistentFlags().StringVar(&opts.Network, "network", "localhost", "network name or chain ID")
	cmd.PersistentFlags().StringVar(&opts.NetworksFile, "networks-file", "", "YAML file layered over the built-in networks")
	cmd.PersistentFlags().StringVar(&opts.RPCURL, "rpc-url", "", "JSON-RPC endpoint for on-chain price feeds")

	// Add subcommands
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewFundCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewFunderCommand(opts))
	cmd.AddCommand(NewAmountCommand(opts))
	cmd.AddCommand(NewPriceCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWalletCommand(opts))
	cmd.AddCommand(NewNetworksCommand(opts))

	return cmd
}

// Run executes the CLI with args and returns the process exit code. Errors
// are reported on stderr, or on stdout as a JSON response with --format json.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	// Commands return ExitErrors; anything else is cobra rejecting the
	// command line.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		err = WrapExitError(ExitCommandError, "usage", err)
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr}
	_ = out.Error(errorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

// applyEnv fills flags the user did not set from the environment.
func applyEnv(cmd *cobra.Command) error {
	for name, env := range envDefaults {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || flag.Changed {
			continue
		}
		value, ok := os.LookupEnv(env)
		if !ok || value == "" {
			continue
		}
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
