package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/core/service"
	"github.com/valens-carpentier/demeter-sub000/pkg/journal"
	"github.com/valens-carpentier/demeter-sub000/pkg/passkey"
	"github.com/valens-carpentier/demeter-sub000/pkg/signer"
	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

var _FlagCredential = &cli.StringFlag{
	Name:    "credential",
	Usage:   "passkey raw id, or " + signer.KeyCredentialID + " for DEMETER_SIGNER_KEY",
	Value:   signer.KeyCredentialID,
	EnvVars: []string{"DEMETER_CREDENTIAL"},
}

var _FlagWait = &cli.BoolFlag{
	Name:  "wait",
	Usage: "wait until the user operation settles",
}

var _FlagFarm = &cli.StringFlag{
	Name:     "farm",
	Usage:    "farm token address",
	Required: true,
}

var _FlagAmount = &cli.StringFlag{
	Name:     "amount",
	Usage:    "whole farm tokens",
	Required: true,
}

var farmsCommand = &cli.Command{
	Name:  "farms",
	Usage: "lists every farm in the registry",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "active", Usage: "only farms open for trading"},
	},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		farms, err := rt.registry.ListFarms(c.Context)
		if err != nil {
			return err
		}
		if c.Bool("active") {
			farms = service.ActiveFarms(farms)
		}
		return printJSON(c, farms)
	}),
}

var holdingsCommand = &cli.Command{
	Name:      "holdings",
	Usage:     "shows farm-token positions and their value",
	ArgsUsage: "[ADDRESS]",
	Flags:     []cli.Flag{_FlagCredential},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		account, err := accountArg(c, rt)
		if err != nil {
			return err
		}
		portfolio, err := rt.holdings.GetPortfolio(c.Context, account)
		if err != nil {
			return err
		}
		return printJSON(c, portfolio)
	}),
}

var historyCommand = &cli.Command{
	Name:      "history",
	Usage:     "shows farm-token trades, newest first",
	ArgsUsage: "[ADDRESS]",
	Flags:     []cli.Flag{_FlagCredential},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		account, err := accountArg(c, rt)
		if err != nil {
			return err
		}
		return printJSON(c, rt.history.LoadTransactions(c.Context, account))
	}),
}

var sessionCommand = &cli.Command{
	Name:  "session",
	Usage: "derives the smart account of a credential",
	Flags: []cli.Flag{_FlagCredential},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		session, err := rt.sessions.DeriveSession(c.Context, c.String("credential"))
		if err != nil {
			return err
		}
		return printJSON(c, session)
	}),
}

var activateCommand = &cli.Command{
	Name:  "activate",
	Usage: "deploys the smart account",
	Flags: []cli.Flag{_FlagCredential, _FlagWait},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		session, err := rt.sessions.DeriveSession(c.Context, c.String("credential"))
		if err != nil {
			return err
		}
		handle, err := rt.deployer.Activate(c.Context, session)
		if err != nil {
			return err
		}
		return settle(c, rt, session, handle, func(ctx context.Context, h *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
			return rt.poller.Await(ctx, session.Account, h)
		})
	}),
}

var buyCommand = &cli.Command{
	Name:  "buy",
	Usage: "buys farm tokens with USDC",
	Flags: []cli.Flag{_FlagCredential, _FlagFarm, _FlagAmount, _FlagWait},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		session, req, err := tradeRequest(c, rt)
		if err != nil {
			return err
		}
		handle, err := rt.trader.Buy(c.Context, session, req)
		if err != nil {
			return err
		}
		return settle(c, rt, session, handle, awaitTrade(rt, session))
	}),
}

var sellCommand = &cli.Command{
	Name:  "sell",
	Usage: "sells farm tokens for USDC",
	Flags: []cli.Flag{_FlagCredential, _FlagFarm, _FlagAmount, _FlagWait},
	Action: withRuntime(func(c *cli.Context, rt *runtime) error {
		session, req, err := tradeRequest(c, rt)
		if err != nil {
			return err
		}
		available, err := wholeBalance(c, rt, req.FarmToken, session.SmartAccountAddress)
		if err != nil {
			return err
		}
		req.AvailableBalance = available

		handle, err := rt.trader.Sell(c.Context, session, req)
		if err != nil {
			return err
		}
		return settle(c, rt, session, handle, awaitTrade(rt, session))
	}),
}

var credentialsCommand = &cli.Command{
	Name:  "credentials",
	Usage: "manages stored passkey credentials",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "lists stored credentials",
			Action: func(c *cli.Context) error {
				creds, err := credentialStore(c).List()
				if err != nil {
					return err
				}
				return printJSON(c, creds)
			},
		},
		{
			Name:  "add",
			Usage: "stores a credential's public key",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "raw-id", Required: true},
				&cli.StringFlag{Name: "x", Usage: "P-256 x coordinate, hex", Required: true},
				&cli.StringFlag{Name: "y", Usage: "P-256 y coordinate, hex", Required: true},
			},
			Action: func(c *cli.Context) error {
				cred := domain.Credential{
					RawID:       c.String("raw-id"),
					Coordinates: domain.Coordinates{X: c.String("x"), Y: c.String("y")},
				}
				if err := credentialStore(c).Create(cred); err != nil {
					return err
				}
				return printJSON(c, cred)
			},
		},
		{
			Name:      "find",
			Usage:     "looks up a credential by raw id",
			ArgsUsage: "RAW_ID",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.ShowSubcommandHelp(c)
				}
				cred, err := credentialStore(c).FindByRawID(c.Args().First())
				if err != nil {
					return err
				}
				return printJSON(c, cred)
			},
		},
	},
}

var pendingCommand = &cli.Command{
	Name:  "pending",
	Usage: "manages user operations submitted but not yet settled",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "lists recorded operations",
			Action: func(c *cli.Context) error {
				entries, err := pendingJournal(c).List()
				if err != nil {
					return err
				}
				return printJSON(c, entries)
			},
		},
		{
			Name:      "resume",
			Usage:     "waits for a recorded operation to settle",
			ArgsUsage: "ATTEMPT_ID",
			Action: withRuntime(func(c *cli.Context, rt *runtime) error {
				if c.NArg() != 1 {
					return cli.ShowSubcommandHelp(c)
				}
				id, err := uuid.Parse(c.Args().First())
				if err != nil {
					return &domain.ValidationError{Field: "attempt id", Reason: "not a uuid"}
				}
				entry, err := rt.journal.Load(id)
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("no pending operation %s", id)
				}
				session, err := rt.sessions.DeriveSession(c.Context, entry.CredentialID)
				if err != nil {
					return err
				}
				if session.SmartAccountAddress != entry.Account {
					return &domain.ValidationError{Field: "account", Reason: "credential derives a different account"}
				}
				return awaitRecorded(c, rt, entry, func(ctx context.Context, h *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
					return rt.poller.Await(ctx, session.Account, h)
				})
			}),
		},
		{
			Name:  "prune",
			Usage: "drops records older than journal.max_age",
			Action: func(c *cli.Context) error {
				removed, err := pendingJournal(c).Prune(configFrom(c).Journal.MaxAge)
				if err != nil {
					return err
				}
				loggerFrom(c).Info("pruned pending operations", slog.Int("removed", removed))
				return nil
			},
		},
	},
}

func pendingJournal(c *cli.Context) *journal.Journal {
	return journal.New(configFrom(c).Journal.Dir)
}

func credentialStore(c *cli.Context) *passkey.Store {
	return passkey.NewStore(configFrom(c).Credentials.Path)
}

// accountArg returns the ADDRESS argument or the credential's account.
func accountArg(c *cli.Context, rt *runtime) (common.Address, error) {
	if c.NArg() > 0 {
		arg := c.Args().First()
		if !common.IsHexAddress(arg) {
			return common.Address{}, &domain.ValidationError{Field: "address", Reason: "not a hex address"}
		}
		return common.HexToAddress(arg), nil
	}
	session, err := rt.sessions.DeriveSession(c.Context, c.String("credential"))
	if err != nil {
		return common.Address{}, err
	}
	return session.SmartAccountAddress, nil
}

func tradeRequest(c *cli.Context, rt *runtime) (*domain.AccountSession, domain.TradeRequest, error) {
	farm := c.String("farm")
	if !common.IsHexAddress(farm) {
		return nil, domain.TradeRequest{}, &domain.ValidationError{Field: "farm token", Reason: "not a hex address"}
	}
	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok {
		return nil, domain.TradeRequest{}, &domain.ValidationError{Field: "amount", Reason: "not a whole number"}
	}
	farmToken := common.HexToAddress(farm)
	if _, err := rt.registry.RequireFarm(c.Context, farmToken); err != nil {
		return nil, domain.TradeRequest{}, err
	}

	session, err := rt.sessions.DeriveSession(c.Context, c.String("credential"))
	if err != nil {
		return nil, domain.TradeRequest{}, err
	}
	return session, domain.TradeRequest{
		FarmToken:    farmToken,
		Account:      session.SmartAccountAddress,
		TokenAmount:  amount,
		CredentialID: session.OwnerCredentialID,
	}, nil
}

// wholeBalance reads the account's farm-token balance in whole tokens.
func wholeBalance(c *cli.Context, rt *runtime, token, account common.Address) (*big.Int, error) {
	raw, err := rt.contracts.BalanceOf(c.Context, token, account)
	if err != nil {
		return nil, err
	}
	decimals, err := rt.contracts.Decimals(c.Context, token)
	if err != nil {
		return nil, err
	}
	display, err := units.ToDisplayAmount(raw, int(decimals))
	if err != nil {
		return nil, err
	}
	return display.Floor().BigInt(), nil
}

type awaitFunc func(ctx context.Context, handle *domain.UserOperationHandle) (*domain.UserOperationReceipt, error)

func awaitTrade(rt *runtime, session *domain.AccountSession) awaitFunc {
	return func(ctx context.Context, handle *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
		return rt.trader.Await(ctx, session, handle)
	}
}

// settle records handle in the journal and, with --wait, waits for it.
func settle(c *cli.Context, rt *runtime, session *domain.AccountSession, handle *domain.UserOperationHandle, await awaitFunc) error {
	entry := journal.FromHandle(handle, session.OwnerCredentialID)
	if err := rt.journal.Save(entry); err != nil {
		rt.logger.Warn("failed to record pending operation",
			slog.String("attempt", handle.AttemptID.String()),
			slog.Any("error", err),
		)
	}
	if !c.Bool("wait") {
		return printJSON(c, handle)
	}
	return awaitRecorded(c, rt, entry, await)
}

// awaitRecorded waits on entry and forgets it once a receipt exists.
// Timeouts and cancellations leave it in the journal for resume.
func awaitRecorded(c *cli.Context, rt *runtime, entry *journal.Entry, await awaitFunc) error {
	entry.State = journal.StateAwaiting
	if err := rt.journal.Save(entry); err != nil {
		rt.logger.Warn("failed to record pending operation",
			slog.String("attempt", entry.AttemptID.String()),
			slog.Any("error", err),
		)
	}

	receipt, err := await(c.Context, entry.Handle())
	if receipt != nil {
		if derr := rt.journal.Delete(entry.AttemptID); derr != nil {
			rt.logger.Warn("failed to clear pending operation", slog.Any("error", derr))
		}
	}
	if err != nil {
		return err
	}
	return printJSON(c, receipt)
}

func printJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
