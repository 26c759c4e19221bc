package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/medisim/internal/evaluation"
	"github.com/abhisek/medisim/internal/session"
	"github.com/abhisek/medisim/internal/store"
	"github.com/abhisek/medisim/internal/transcript"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive an encounter one step at a time",
}

// withService opens the environment, builds the session service and hands
// it to fn.
func withService(cmd *cobra.Command, fn func(svc *session.Service) error) error {
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.service(cmd.Context())
	if err != nil {
		return err
	}
	return fn(svc)
}

var runStartCmd = &cobra.Command{
	Use:   "start <case-id>",
	Short: "Start a run of a case and print its ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		return withService(cmd, func(svc *session.Service) error {
			run, err := svc.StartRun(cmd.Context(), args[0], student)
			if err != nil {
				return err
			}
			fmt.Println(run.ID)
			return nil
		})
	},
}

var runAskCmd = &cobra.Command{
	Use:   "ask <run-id> <question>...",
	Short: "Ask the patient a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return withService(cmd, func(svc *session.Service) error {
			ex, err := svc.Ask(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			fmt.Println(ex.Reply.Text)
			return nil
		})
	},
}

var runOrderCmd = &cobra.Command{
	Use:   "order <run-id> <test>...",
	Short: "Order a diagnostic test",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		testName := strings.Join(args[1:], " ")
		return withService(cmd, func(svc *session.Service) error {
			f, err := svc.Order(cmd.Context(), args[0], testName)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", f.Order.TestName, f.Result.Text)
			return nil
		})
	},
}

var runResultsCmd = &cobra.Command{
	Use:   "results <run-id>",
	Short: "Show every result ordered so far",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *session.Service) error {
			fs, err := svc.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(fs) == 0 {
				fmt.Println("No tests ordered.")
				return nil
			}
			for _, f := range fs {
				fmt.Printf("%s  %-20s  %s\n", f.Order.CreatedAt.Local().Format("15:04:05"), f.Order.TestName, f.Result.Text)
			}
			return nil
		})
	},
}

var runTranscriptCmd = &cobra.Command{
	Use:   "transcript <run-id>",
	Short: "Print the conversation so far",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *session.Service) error {
			t, err := svc.Transcript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range t {
				who := "Patient"
				if m.Sender == transcript.Student {
					who = "Student"
				}
				fmt.Printf("%3d  %-8s %s", m.Seq, who, m.Text)
				if len(m.Tags) > 0 {
					fmt.Printf("  [%s]", strings.Join(m.Tags.Strings(), ", "))
				}
				fmt.Println()
			}
			return nil
		})
	},
}

var runSubmitCmd = &cobra.Command{
	Use:   "submit <run-id>",
	Short: "Submit an assessment and print the evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dx, _ := cmd.Flags().GetString("dx")
		diff, _ := cmd.Flags().GetStringArray("diff")
		plan, _ := cmd.Flags().GetStringArray("plan")

		return withService(cmd, func(svc *session.Service) error {
			rep, err := svc.Submit(cmd.Context(), args[0], session.Assessment{
				Differential: diff,
				FinalDx:      dx,
				Plan:         plan,
			})
			if err != nil {
				return err
			}
			printReport(rep)
			return nil
		})
	},
}

var runEvaluationCmd = &cobra.Command{
	Use:   "evaluation <run-id>",
	Short: "Print the stored evaluation of a submitted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *session.Service) error {
			rep, err := svc.Evaluation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(rep)
			return nil
		})
	},
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		caseID, _ := cmd.Flags().GetString("case")

		return withService(cmd, func(svc *session.Service) error {
			runs, err := svc.ListRuns(cmd.Context(), store.QueryOpts{Limit: limit, CaseID: caseID})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			fmt.Printf("%-36s  %-24s  %-12s  %-19s  %s\n", "ID", "Case", "Student", "Started", "Status")
			fmt.Println(strings.Repeat("─", 110))
			for _, r := range runs {
				fmt.Printf("%-36s  %-24s  %-12s  %-19s  %s\n",
					r.ID,
					truncate(r.CaseID, 24),
					truncate(orDash(r.Student), 12),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Status,
				)
			}
			return nil
		})
	},
}

func printReport(rep *session.Report) {
	ev := rep.Evaluation
	fmt.Printf("Run:      %s\n", rep.RunID)
	fmt.Printf("Rubric:   %s\n", ev.RubricID)
	fmt.Printf("Overall:  %.2f / %d\n", ev.Overall, evaluation.MaxScore)
	fmt.Println(strings.Repeat("─", 72))
	for _, c := range evaluation.Criteria {
		fmt.Printf("%-22s  %d  %s\n", c, ev.Scores[c], ev.Feedback[c])
	}
}

func init() {
	runStartCmd.Flags().String("student", "", "Name recorded on the run")
	runSubmitCmd.Flags().String("dx", "", "Final diagnosis")
	runSubmitCmd.Flags().StringArray("diff", nil, "Differential diagnosis, repeat in order of likelihood")
	runSubmitCmd.Flags().StringArray("plan", nil, "Initial plan item, repeatable")
	runListCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	runListCmd.Flags().String("case", "", "Only show runs of this case")

	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runAskCmd)
	runCmd.AddCommand(runOrderCmd)
	runCmd.AddCommand(runResultsCmd)
	runCmd.AddCommand(runTranscriptCmd)
	runCmd.AddCommand(runSubmitCmd)
	runCmd.AddCommand(runEvaluationCmd)
	runCmd.AddCommand(runListCmd)
}
