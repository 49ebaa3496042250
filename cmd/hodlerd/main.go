package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JermWang/hodler-sub004/internal/app"
	"github.com/JermWang/hodler-sub004/internal/db"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine"
	"github.com/JermWang/hodler-sub004/internal/logger"
	"github.com/JermWang/hodler-sub004/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hodlerd",
	Short: "Hodler escrow and governance daemon",
	Long: `hodlerd runs milestone escrow commitments with holder governance.
Creators lock funds against milestones; token holders vote with their holding
weight; approved milestones release to the creator, failed ones split between
a buyback and the voters who showed up.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HODLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(commitmentCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(voteCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(rewardsCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(logCmd())
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	log := logger.New(viper.GetString("log-level"), true)
	a, err := app.Open(viper.GetString("workspace"), log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{
					Engine:     a.Engine,
					Reconciler: a.Reconciler,
					BasePath:   basePath,
					Auth:       server.AuthConfig{JWTSecret: os.Getenv("HODLER_JWT_SECRET")},
				})
				if err != nil {
					return err
				}

				sweepCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go runNormalizeLoop(sweepCtx, a)
				go runReconcileLoop(sweepCtx, a)

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving hodler api")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func runNormalizeLoop(ctx context.Context, a *app.App) {
	interval := time.Duration(a.Config.Server.NormalizeIntervalSecs) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			transitioned, changed, err := a.Engine.Normalize(ctx)
			if err != nil {
				a.Log.Error().Err(err).Msg("normalize sweep failed")
			} else if changed {
				a.Log.Info().Int("milestones", len(transitioned)).Msg("normalize sweep applied transitions")
			}
		}
	}
}

func runReconcileLoop(ctx context.Context, a *app.App) {
	interval := time.Duration(a.Config.Server.ReconcileIntervalSecs) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Reconciler.Sweep(ctx); err != nil {
				a.Log.Error().Err(err).Msg("reconcile sweep failed")
			}
		}
	}
}

func commitmentCmd() *cobra.Command {
	c := &cobra.Command{Use: "commitment", Short: "Manage commitments"}
	c.AddCommand(commitmentCreateCmd())
	c.AddCommand(commitmentListCmd())
	c.AddCommand(commitmentShowCmd())
	c.AddCommand(commitmentResolveCmd())
	return c
}

func commitmentCreateCmd() *cobra.Command {
	var kind, escrow, authority, failureDest, mint, feeMode string
	var funded uint64
	var deadline int64
	var milestones []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.CreateCommitmentInput{
				Kind:          domain.CommitmentKind(kind),
				EscrowAddress: escrow,
				Authority:     authority,
				FailureDest:   failureDest,
				FundedAmount:  funded,
				VoteTokenMint: mint,
				FeeMode:       domain.FeeMode(feeMode),
				DeadlineUnix:  deadline,
			}
			for _, raw := range milestones {
				m, err := parseMilestoneFlag(raw)
				if err != nil {
					return err
				}
				in.Milestones = append(in.Milestones, m)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.CreateCommitment(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "creator_reward", "personal or creator_reward")
	cmd.Flags().StringVar(&escrow, "escrow", "", "escrow account address")
	cmd.Flags().StringVar(&authority, "authority", "", "authority wallet address")
	cmd.Flags().StringVar(&failureDest, "failure-dest", "", "failure destination wallet")
	cmd.Flags().StringVar(&mint, "vote-token-mint", "", "vote token mint")
	cmd.Flags().StringVar(&feeMode, "fee-mode", "managed", "managed or assisted")
	cmd.Flags().Uint64Var(&funded, "funded", 0, "funded amount in lamports")
	cmd.Flags().Int64Var(&deadline, "deadline", 0, "deadline (unix seconds)")
	cmd.Flags().StringArrayVar(&milestones, "milestone", nil, `milestone as "title:amount" lamports or "title:bps%" of funded, repeatable`)
	_ = cmd.MarkFlagRequired("escrow")
	_ = cmd.MarkFlagRequired("authority")
	_ = cmd.MarkFlagRequired("funded")
	return cmd
}

// parseMilestoneFlag parses "Ship v1:400" (lamports) or "Ship v1:4000%"
// (basis points of the funded total).
func parseMilestoneFlag(raw string) (engine.MilestoneInput, error) {
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return engine.MilestoneInput{}, fmt.Errorf("invalid milestone %q, want title:amount or title:bps%%", raw)
	}
	m := engine.MilestoneInput{Title: raw[:idx]}
	value := raw[idx+1:]
	if strings.HasSuffix(value, "%") {
		bps, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return engine.MilestoneInput{}, fmt.Errorf("invalid milestone bps in %q: %w", raw, err)
		}
		m.UnlockBps = bps
		return m, nil
	}
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return engine.MilestoneInput{}, fmt.Errorf("invalid milestone amount in %q: %w", raw, err)
	}
	m.UnlockAmount = amount
	return m, nil
}

func commitmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListCommitments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Status", "Funded", "Unlocked", "Authority"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Kind, c.Status, c.FundedAmount, c.UnlockedTotal, c.Authority})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func commitmentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a commitment and its milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.GetCommitment(ctx, args[0])
				if err != nil {
					return err
				}
				ms, err := a.Engine.ListMilestones(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"commitment": c, "milestones": ms})
				}
				if err := printJSON(c); err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "ID", "Title", "Status", "Unlock", "Due"})
				for _, m := range ms {
					tw.AppendRow(table.Row{m.Seq, m.ID, m.Title, m.Status, m.Unlock(c.FundedAmount), m.DueAtUnix})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func commitmentResolveCmd() *cobra.Command {
	var signedAt int64
	var signature string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a matured personal commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.ResolvePersonal(ctx, args[0], signedAt, signature)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().Int64Var(&signedAt, "signed-at", 0, "signed timestamp (unix seconds)")
	cmd.Flags().StringVar(&signature, "signature", "", "authority signature (base58)")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func milestoneCmd() *cobra.Command {
	c := &cobra.Command{Use: "milestone", Short: "Manage milestones"}
	c.AddCommand(milestoneAppendCmd())
	c.AddCommand(milestoneShowCmd())
	c.AddCommand(milestoneCompleteCmd())
	c.AddCommand(milestoneReleaseCmd())
	c.AddCommand(milestoneDistributeCmd())
	return c
}

func milestoneAppendCmd() *cobra.Command {
	var title, signature string
	var amount uint64
	var bps int
	var due int64
	cmd := &cobra.Command{
		Use:   "append <commitment-id>",
		Short: "Append a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.AppendMilestone(ctx, args[0], engine.MilestoneInput{
					Title:        title,
					UnlockAmount: amount,
					UnlockBps:    bps,
					DueAtUnix:    due,
				}, signature)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "milestone title")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "unlock amount in lamports")
	cmd.Flags().IntVar(&bps, "bps", 0, "unlock share in basis points")
	cmd.Flags().Int64Var(&due, "due", 0, "due date (unix seconds)")
	cmd.Flags().StringVar(&signature, "signature", "", "authority signature (base58)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func milestoneShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.GetMilestone(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
}

func milestoneCompleteCmd() *cobra.Command {
	var commitmentID, signature string
	cmd := &cobra.Command{
		Use:   "complete <milestone-id>",
		Short: "Mark a milestone complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.MarkComplete(ctx, commitmentID, args[0], signature)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&commitmentID, "commitment", "", "commitment id")
	cmd.Flags().StringVar(&signature, "signature", "", "authority signature (base58)")
	_ = cmd.MarkFlagRequired("commitment")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func milestoneReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <milestone-id>",
		Short: "Release a claimable milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.Release(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
}

func milestoneDistributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribute <milestone-id>",
		Short: "Create the failure distribution for a failed milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.CreateFailureDistribution(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

func voteCmd() *cobra.Command {
	c := &cobra.Command{Use: "vote", Short: "Vote on milestones"}
	c.AddCommand(voteCastCmd())
	c.AddCommand(voteTallyCmd())
	return c
}

func voteCastCmd() *cobra.Command {
	var voter, choice, signature string
	var weight uint64
	cmd := &cobra.Command{
		Use:   "cast <milestone-id>",
		Short: "Cast a weighted vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.RecordVote(ctx, engine.VoteInput{
					MilestoneID: args[0],
					Voter:       voter,
					Choice:      domain.VoteChoice(choice),
					Weight:      weight,
					Signature:   signature,
				})
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
	cmd.Flags().StringVar(&voter, "voter", "", "voter wallet address")
	cmd.Flags().StringVar(&choice, "choice", "", "approve or reject")
	cmd.Flags().Uint64Var(&weight, "weight", 0, "USD-equivalent holding weight")
	cmd.Flags().StringVar(&signature, "signature", "", "voter signature (base58)")
	_ = cmd.MarkFlagRequired("voter")
	_ = cmd.MarkFlagRequired("choice")
	_ = cmd.MarkFlagRequired("weight")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func voteTallyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tally <milestone-id>",
		Short: "Show the current tally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTally(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func claimCmd() *cobra.Command {
	var wallet, signature string
	var signedAt int64
	cmd := &cobra.Command{
		Use:   "claim <milestone-id>",
		Short: "Claim a failure payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.ClaimFailurePayout(ctx, args[0], wallet, signedAt, signature)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "claimant wallet address")
	cmd.Flags().Int64Var(&signedAt, "signed-at", 0, "signed timestamp (unix seconds)")
	cmd.Flags().StringVar(&signature, "signature", "", "claimant signature (base58)")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func rewardsCmd() *cobra.Command {
	c := &cobra.Command{Use: "rewards", Short: "Vote rewards"}

	list := &cobra.Command{
		Use:   "list <wallet>",
		Short: "List unclaimed reward entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListUnclaimedRewards(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}

	accrue := &cobra.Command{
		Use:   "accrue <commitment-id>",
		Short: "Run a reward accrual pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.AccrueVoteRewards(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(entries)
			})
		},
	}

	var wallet, signature string
	var signedAt int64
	claimAll := &cobra.Command{
		Use:   "claim",
		Short: "Claim all unclaimed rewards for a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				amount, txRef, err := a.Engine.ClaimVoteRewardsAll(ctx, wallet, signedAt, signature)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"wallet": wallet, "amount": amount, "tx_ref": txRef})
			})
		},
	}
	claimAll.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	claimAll.Flags().Int64Var(&signedAt, "signed-at", 0, "signed timestamp (unix seconds)")
	claimAll.Flags().StringVar(&signature, "signature", "", "wallet signature (base58)")
	_ = claimAll.MarkFlagRequired("wallet")
	_ = claimAll.MarkFlagRequired("signature")

	c.AddCommand(list, accrue, claimAll)
	return c
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Run the settlement sweep once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				transitioned, changed, err := a.Engine.Normalize(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"changed": changed, "milestones": transitioned})
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	c := &cobra.Command{Use: "reconcile", Short: "Payout reconciliation"}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep pending submissions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Reconciler.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"resolved": n})
			})
		},
	}

	var confirmed bool
	var txRef string
	resolve := &cobra.Command{
		Use:   "resolve <submission-id>",
		Short: "Resolve an inconsistent submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid submission id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Reconciler.ResolveInconsistent(ctx, id, confirmed, txRef)
			})
		},
	}
	resolve.Flags().BoolVar(&confirmed, "confirmed", false, "the transfer did land on chain")
	resolve.Flags().StringVar(&txRef, "tx-ref", "", "transaction signature if known")

	list := &cobra.Command{
		Use:   "list",
		Short: "List inconsistent submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListSubmissionsByStatus(ctx, domain.SubmissionInconsistent)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Entity", "Amount", "TxRef", "Reason"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.EntityKind, s.EntityID, s.Amount, s.TxRef, s.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}

	c.AddCommand(sweep, resolve, list)
	return c
}

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <commitment-id>",
		Short: "Show a commitment's audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.ListEvents(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TSUnix, e.Type, e.EntityKind + "/" + e.EntityID, e.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
