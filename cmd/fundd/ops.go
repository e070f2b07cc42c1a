package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"solana-fund-dao/internal/domain"
)

// runWithApp loads config, builds the app for one command and closes it.
func runWithApp(g *globalFlags, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return n, nil
}

func fundCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Create and manage funds and member positions",
	}
	cmd.AddCommand(
		fundCreateCmd(g),
		&cobra.Command{
			Use:   "deposit <fund-id> <member> <amount>",
			Short: "Deposit native units and mint voting shares",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					m, err := a.funds.Deposit(ctx, args[0], args[1], amount)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), m)
				})
			},
		},
		&cobra.Command{
			Use:   "withdraw <fund-id> <member> <shares>",
			Short: "Burn voting shares for a proportional payout",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				shares, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					payout, err := a.funds.Withdraw(ctx, args[0], args[1], shares)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]uint64{"shares": shares, "payout": payout})
				})
			},
		},
		&cobra.Command{
			Use:   "archive <fund-id>",
			Short: "Archive an empty fund with no open proposals",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					f, err := a.funds.Archive(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), f)
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List funds",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					funds, err := a.funds.ListFunds(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), funds)
				})
			},
		},
		&cobra.Command{
			Use:   "members <fund-id>",
			Short: "List the members of a fund",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					members, err := a.funds.ListMembers(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), members)
				})
			},
		},
	)
	return cmd
}

func fundCreateCmd(g *globalFlags) *cobra.Command {
	var (
		creator string
		deposit uint64
		seed    string
		quorum  string
		window  time.Duration
		minimum uint64
		members []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a fund with the creator's initial deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
				fc, err := a.cfg.DefaultFundConfig()
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("quorum") {
					if fc.QuorumThreshold, err = decimal.NewFromString(quorum); err != nil {
						return fmt.Errorf("quorum %q: %w", quorum, err)
					}
				}
				if cmd.Flags().Changed("window") {
					fc.VotingWindow = window
				}
				if cmd.Flags().Changed("min-deposit") {
					fc.MinimumDeposit = minimum
				}
				fc.Roster = members

				var f *domain.Fund
				if seed != "" {
					f, err = a.funds.CreateFundWithSeed(ctx, creator, seed, deposit, fc)
				} else {
					f, err = a.funds.CreateFund(ctx, creator, deposit, fc)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), f)
			})
		},
	}

	cmd.Flags().StringVar(&creator, "creator", "", "Creator identity (required)")
	cmd.Flags().Uint64Var(&deposit, "deposit", 0, "Initial deposit in native units (required)")
	cmd.Flags().StringVar(&seed, "seed", "", "Fund address seed (random when empty)")
	cmd.Flags().StringVar(&quorum, "quorum", "", "Quorum threshold in (0,1]; config default when unset")
	cmd.Flags().DurationVar(&window, "window", 0, "Voting window; config default when unset")
	cmd.Flags().Uint64Var(&minimum, "min-deposit", 0, "Minimum initial deposit; config default when unset")
	cmd.Flags().StringSliceVar(&members, "member", nil, "Roster identity allowed to deposit (repeatable); open fund when unset")
	cmd.MarkFlagRequired("creator")
	cmd.MarkFlagRequired("deposit")
	return cmd
}

// proposalView is a proposal with its ballots.
type proposalView struct {
	Proposal *domain.Proposal `json:"proposal"`
	Votes    []*domain.Vote   `json:"votes"`
}

func proposalCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Submit, vote on and execute investment proposals",
	}

	var venueName string
	submit := &cobra.Command{
		Use:   "submit <fund-id> <proposer> <target-asset> <amount>",
		Short: "Submit an investment proposal and open voting",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[3])
			if err != nil {
				return err
			}
			return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
				p, err := a.proposals.Submit(ctx, args[0], args[1], args[2], amount, venueName)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	submit.Flags().StringVar(&venueName, "venue", "default", "Execution venue name")

	cmd.AddCommand(
		submit,
		&cobra.Command{
			Use:   "vote <proposal-id> <voter> <for|against>",
			Short: "Cast or replace a vote",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := domain.ParseDirection(args[2])
				if err != nil {
					return err
				}
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					p, err := a.proposals.CastVote(ctx, args[0], args[1], dir)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), p)
				})
			},
		},
		&cobra.Command{
			Use:   "execute <proposal-id>",
			Short: "Execute an approved proposal against the trade venue",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					res, err := a.dispatcher.Execute(ctx, args[0])
					if res != nil {
						if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
							return errors.Join(err, perr)
						}
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "show <proposal-id>",
			Short: "Show a proposal, finalizing it if its deadline passed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					p, err := a.proposals.Refresh(ctx, args[0])
					if err != nil {
						return err
					}
					votes, err := a.proposals.ListVotes(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), proposalView{Proposal: p, Votes: votes})
				})
			},
		},
		&cobra.Command{
			Use:   "list <fund-id>",
			Short: "List the proposals of a fund",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(g, cmd, func(ctx context.Context, a *app) error {
					ps, err := a.proposals.ListByFund(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), ps)
				})
			},
		},
	)
	return cmd
}
