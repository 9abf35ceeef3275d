package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/agent"
)

var (
	demoRounds   int
	demoInterval time.Duration
	demoAdapt    time.Duration
	demoURL      string
	demoAPIKey   string
	demoAgentID  string
	demoSeed     uint64
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVar(&demoRounds, "rounds", agent.SequenceLen, "Proposals to submit (0 runs until interrupted)")
	demoCmd.Flags().DurationVar(&demoInterval, "interval", 0, "Pause between proposals")
	demoCmd.Flags().DurationVar(&demoAdapt, "adapt-delay", agent.DefaultAdaptDelay, "Pause before re-proposing a refused action")
	demoCmd.Flags().StringVar(&demoURL, "url", "", "Submit to a running governor at this URL instead of in-process")
	demoCmd.Flags().StringVar(&demoAPIKey, "api-key", "", "API key for --url")
	demoCmd.Flags().StringVar(&demoAgentID, "agent", agent.DefaultAgentID, "Agent id on generated proposals")
	demoCmd.Flags().Uint64Var(&demoSeed, "seed", uint64(time.Now().UnixNano()), "Seed for simulated market data")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the demo worker agent",
	Long: "Cycles through safe and risky transfer, swap, deploy and API call\n" +
		"proposals. After a refusal the agent re-proposes a safer variant.",
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sub agent.Submitter
	if demoURL != "" {
		sub = agent.NewRemote(demoURL, demoAPIKey)
	} else {
		a, err := openApp(ctx, cfg, appOptions{alerts: true})
		if err != nil {
			return err
		}
		defer a.Close()
		sub = agent.Local{Service: a.svc}
	}

	runner := agent.NewRunner(agent.NewGenerator(demoAgentID, demoSeed), sub,
		agent.WithInterval(demoInterval),
		agent.WithAdaptDelay(demoAdapt),
		agent.WithLogger(slog.Default()),
	)
	rounds := runner.Run(ctx, demoRounds)

	w := cmd.OutOrStdout()
	for _, r := range rounds {
		fmt.Fprintf(w, "%-10s %-22s risk %3d  %s\n", r.Proposal.ActionType, r.Decision.Decision, r.Decision.RiskScore, r.Proposal.Intent)
		if r.AdaptedDecision != nil {
			fmt.Fprintf(w, "  adapted  %-22s risk %3d  %s\n", r.AdaptedDecision.Decision, r.AdaptedDecision.RiskScore, r.Adapted.Intent)
		}
	}
	return nil
}
