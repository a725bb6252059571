package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"codesmith/internal/agent"
	"codesmith/internal/planning"
	"codesmith/internal/swarm"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newAgent builds the agent from the loaded config; callers close it.
func newAgent() (*agent.Agent, error) {
	return agent.New(cfg, log)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show agent status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Println(a.Info())
		return nil
	},
}

var objectiveCmd = &cobra.Command{
	Use:   "objective",
	Short: "Manage strategic objectives",
}

var (
	objID         string
	objTitle      string
	objDesc       string
	objTimeframe  int
	objKeyResults []string
)

var objectiveAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a strategic objective",
	RunE: func(cmd *cobra.Command, args []string) error {
		if objID == "" || objTitle == "" {
			return fmt.Errorf("--id and --title are required")
		}
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()

		obj := planning.NewObjective(objID, objTitle, objDesc, objTimeframe)
		obj.KeyResults = objKeyResults
		a.Planning().AddObjective(obj)
		if err := a.Planning().Save(); err != nil {
			return err
		}
		fmt.Printf("added objective %s\n", objID)
		return nil
	},
}

var objectiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategic objectives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()

		plan := a.Planning().Plan()
		if len(plan.Objectives) == 0 {
			fmt.Println("no objectives defined")
			return nil
		}
		for _, o := range plan.Objectives {
			fmt.Printf("%-20s %3d%%  %dmo  %s\n", o.ID, o.Progress, o.Timeframe, o.Title)
		}
		return nil
	},
}

// objectiveFile is the on-disk shape accepted by load-objectives.
type objectiveFile struct {
	Objectives []struct {
		ID          string   `yaml:"id" json:"id"`
		Title       string   `yaml:"title" json:"title"`
		Description string   `yaml:"description" json:"description"`
		Timeframe   int      `yaml:"timeframe_months" json:"timeframe_months"`
		KeyResults  []string `yaml:"key_results" json:"key_results"`
		Constraints []string `yaml:"constraints" json:"constraints"`
	} `yaml:"objectives" json:"objectives"`
}

var loadObjectivesCmd = &cobra.Command{
	Use:   "load-objectives <file>",
	Short: "Load strategic objectives from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var file objectiveFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		if len(file.Objectives) == 0 {
			return fmt.Errorf("no objectives found in %s", args[0])
		}

		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, o := range file.Objectives {
			obj := planning.NewObjective(o.ID, o.Title, o.Description, o.Timeframe)
			obj.KeyResults = o.KeyResults
			obj.Constraints = o.Constraints
			a.Planning().AddObjective(obj)
		}
		if err := a.Planning().Save(); err != nil {
			return err
		}
		fmt.Printf("loaded %d objectives\n", len(file.Objectives))
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Work with the strategic plan",
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a planning cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Planning().RunPlanningCycle(); err != nil {
			return err
		}
		fmt.Println("planning cycle complete")
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the planning hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()
		return renderMarkdown(a.Planning().Visualization())
	},
}

var planReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the progress report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()
		return renderMarkdown(a.Planning().ProgressReport())
	},
}

// renderMarkdown pretty-prints through glamour, degrading to plain text.
func renderMarkdown(md string) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		fmt.Println(md)
		return nil
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

var (
	improveCycles int
	improveSwarm  bool
)

var improveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Run the autonomous improvement loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if improveSwarm {
			results, err := a.RunSwarm(ctx, improveCycles)
			if err != nil {
				return err
			}
			for i, r := range results {
				describeCycle(i+1, r)
			}
			return nil
		}
		return a.ImprovementLoop(ctx)
	},
}

func describeCycle(n int, r *swarm.CycleResult) {
	switch r.Kind {
	case swarm.CycleSuccess:
		fmt.Printf("cycle %d: success %q applied=%v tests=%v\n", n, r.Proposal.Title, r.ChangesApplied, r.TestsPassed)
	case swarm.CycleNoConsensus:
		fmt.Printf("cycle %d: no consensus over %d proposals\n  %s\n", n, r.ProposalCount, strings.Join(r.RejectionReasons, "\n  "))
	case swarm.CycleExecutionFailed:
		fmt.Printf("cycle %d: execution failed for %q: %s\n", n, r.Proposal.Title, r.Error)
	default:
		fmt.Printf("cycle %d: no improvements found\n", n)
	}
}

func init() {
	objectiveAddCmd.Flags().StringVar(&objID, "id", "", "objective id")
	objectiveAddCmd.Flags().StringVar(&objTitle, "title", "", "objective title")
	objectiveAddCmd.Flags().StringVar(&objDesc, "description", "", "objective description")
	objectiveAddCmd.Flags().IntVar(&objTimeframe, "timeframe", 6, "timeframe in months")
	objectiveAddCmd.Flags().StringSliceVar(&objKeyResults, "key-result", nil, "key result (repeatable)")
	objectiveCmd.AddCommand(objectiveAddCmd, objectiveListCmd)

	planCmd.AddCommand(planGenerateCmd, planShowCmd, planReportCmd)

	improveCmd.Flags().IntVar(&improveCycles, "cycles", 1, "maximum improvement cycles (0 = unbounded)")
	improveCmd.Flags().BoolVar(&improveSwarm, "swarm", false, "use the swarm deliberation path")
}
