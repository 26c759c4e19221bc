package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/medisim/internal/app"
)

var playCmd = &cobra.Command{
	Use:   "play [case-id]",
	Short: "Start an encounter in the terminal UI",
	Long: "Opens the terminal UI. With a case ID the encounter starts right away;\n" +
		"otherwise pick a case from the list.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		caseID := ""
		if len(args) == 1 {
			caseID = args[0]
		}
		return runPlay(cmd, caseID, student)
	},
}

func runPlay(cmd *cobra.Command, caseID, student string) error {
	ctx := cmd.Context()

	// The UI owns the terminal, so logs only go to a configured file.
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.service(ctx)
	if err != nil {
		return err
	}

	opts := app.Options{Service: svc, Student: student}
	if caseID != "" {
		c, err := svc.Case(ctx, caseID)
		if err != nil {
			return err
		}
		run, err := svc.StartRun(ctx, caseID, student)
		if err != nil {
			return err
		}
		opts.Run, opts.Case = run, c
	}

	return app.Run(opts)
}

func init() {
	playCmd.Flags().String("student", "", "Name recorded on the run")
}
