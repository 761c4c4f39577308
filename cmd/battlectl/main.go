package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devghori1264/aerophoenix/battlefield/internal/natsclient"
	"github.com/devghori1264/aerophoenix/battlefield/internal/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	grpcTarget  string
	natsURL     string
	natsPrefix  string
	contractID  string
	timeout     time.Duration
	verbose     bool
	logger      *zap.Logger
	callArgs    string
	callDeposit uint64
	callCaller  string
	viewArgs    string
)

var rootCmd = &cobra.Command{
	Use:           "battlectl",
	Short:         "Drive a battlefieldd host",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewDevelopmentConfig()
		if !verbose {
			config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity with the host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			msg, err := c.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

var callCmd = &cobra.Command{
	Use:     "call METHOD",
	Short:   "Send a function call transaction",
	Example: `  battlectl call new --args '{"owner":"alice"}'
  battlectl call add_file --args '{"name":"a.txt"}'
  battlectl call payable_annotated_mut --deposit 100 --caller bob.near`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			r, err := c.Call(ctx, &server.CallRequest{
				Contract: contractID,
				Method:   args[0],
				Caller:   callCaller,
				Args:     rawArgs(callArgs),
				Deposit:  callDeposit,
			})
			if err != nil {
				return err
			}
			return printJSON(r)
		})
	},
}

var viewCmd = &cobra.Command{
	Use:   "view METHOD",
	Short: "Run a view call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			out, err := c.View(ctx, contractID, args[0], rawArgs(viewArgs))
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		})
	},
}

var receiptCmd = &cobra.Command{
	Use:   "receipt ID",
	Short: "Show a call receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			r, err := c.Receipt(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(r)
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Dump the contract state root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			snap, err := c.State(ctx, contractID)
			if err != nil {
				return err
			}
			return printJSON(snap)
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT",
	Short: "Show a ledger balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.Client) error {
			acc, err := c.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(acc)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream committed receipts from NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		nc, err := nats.Connect(natsURL, nats.Name("battlectl"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()

		subject := natsclient.ReceiptSubject(natsPrefix, contractID)
		sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
			fmt.Println(string(m.Data))
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		logger.Info("watching", zap.String("subject", subject))

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&grpcTarget, "addr", "localhost:50051", "battlefieldd gRPC address")
	pf.StringVar(&natsURL, "nats-url", nats.DefaultURL, "NATS server URL")
	pf.StringVar(&natsPrefix, "nats-prefix", "battlefield", "NATS subject prefix")
	pf.StringVar(&contractID, "contract", "battlefield.near", "contract account id")
	pf.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	callCmd.Flags().StringVar(&callArgs, "args", "", "JSON arguments")
	callCmd.Flags().Uint64Var(&callDeposit, "deposit", 0, "attached deposit")
	callCmd.Flags().StringVar(&callCaller, "caller", "near", "calling account id")
	viewCmd.Flags().StringVar(&viewArgs, "args", "", "JSON arguments")

	rootCmd.AddCommand(pingCmd, callCmd, viewCmd, receiptCmd, stateCmd, balanceCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withClient(cmd *cobra.Command, fn func(context.Context, *server.Client) error) error {
	c, err := server.Dial(grpcTarget)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	logger.Debug("dialing", zap.String("addr", grpcTarget))
	return fn(ctx, c)
}

func rawArgs(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
