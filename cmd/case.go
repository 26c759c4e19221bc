package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/medisim/internal/casedoc"
	"github.com/abhisek/medisim/internal/session"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Validate, import and inspect case documents",
}

type validation struct {
	path string
	c    *casedoc.Case
	err  error
}

var caseValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check case documents and report tolerated problems",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := validateCases(args)

		failed := 0
		for _, r := range results {
			if r.err != nil {
				failed++
				fmt.Printf("✗ %s: %v\n", r.path, r.err)
				continue
			}
			fmt.Printf("✓ %s  (%s, %d reveals, %d tests)\n", r.path, r.c.ID, len(r.c.Reveals), len(r.c.OrdersAllowed))
			for _, w := range r.c.Warnings {
				fmt.Printf("    warning: %s\n", w)
			}
			for _, name := range r.c.UnlistedResults() {
				fmt.Printf("    warning: result for %q is not on the order allow-list\n", name)
			}
		}
		if err != nil {
			return fmt.Errorf("%d of %d documents failed to load: %w", failed, len(results), err)
		}
		return nil
	},
}

// validateCases loads every path concurrently. Each result carries its own
// error; the returned error is the first failure.
func validateCases(paths []string) ([]validation, error) {
	results := make([]validation, len(paths))

	var g errgroup.Group
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			results[i].path = path
			raw, err := os.ReadFile(path)
			if err != nil {
				results[i].err = err
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i].c, results[i].err = casedoc.Load(raw)
			if results[i].err != nil {
				return fmt.Errorf("%s: %w", path, results[i].err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

var caseImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a case document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		e, err := openEnv(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		svc, err := e.service(cmd.Context())
		if err != nil {
			return err
		}

		c, err := svc.ImportCase(cmd.Context(), raw, args[0], force)
		if errors.Is(err, session.ErrCaseNotNewer) {
			return fmt.Errorf("%w (use --force to replace it)", err)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Imported %s: %s", c.ID, c.Title)
		if c.Version != "" {
			fmt.Printf(" (v%s)", strings.TrimPrefix(c.Version, "v"))
		}
		fmt.Println()
		for _, w := range c.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return nil
	},
}

var caseBuildCmd = &cobra.Command{
	Use:   "build <payload.json>",
	Short: "Build a case document from an authoring form payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		raw, err := casedoc.BuildJSON(data)
		if err != nil {
			return err
		}

		if out == "" || out == "-" {
			_, err = os.Stdout.Write(raw)
			return err
		}
		if err := os.WriteFile(out, raw, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", out)
		return nil
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		recs, err := e.store.CaseRepo().ListCases(cmd.Context())
		if err != nil {
			return fmt.Errorf("list cases: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No cases imported.")
			return nil
		}

		fmt.Printf("%-28s  %-9s  %-19s  %s\n", "ID", "Version", "Imported", "Title")
		fmt.Println(strings.Repeat("─", 90))
		for _, r := range recs {
			fmt.Printf("%-28s  %-9s  %-19s  %s\n",
				truncate(r.ID, 28),
				orDash(r.Version),
				r.ImportedAt.Local().Format("2006-01-02 15:04:05"),
				r.Title,
			)
		}
		return nil
	},
}

var caseShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		e, err := openEnv(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		svc, err := e.service(cmd.Context())
		if err != nil {
			return err
		}
		c, err := svc.Case(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asYAML {
			raw, err := casedoc.Marshal(c)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(raw)
			return err
		}

		fmt.Printf("ID:          %s\n", c.ID)
		fmt.Printf("Title:       %s\n", c.Title)
		fmt.Printf("Specialty:   %s\n", c.Specialty)
		fmt.Printf("Difficulty:  %s\n", c.Difficulty)
		fmt.Printf("Version:     %s\n", orDash(c.Version))
		fmt.Printf("Rubric:      %s\n", c.RubricID)
		fmt.Printf("Complaint:   %s\n", c.Patient.Story.ChiefComplaint)
		fmt.Printf("Reveals:     %d topics\n", len(c.Reveals))
		fmt.Printf("Tests:       %s\n", strings.Join(c.OrdersAllowed, ", "))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	caseImportCmd.Flags().Bool("force", false, "Replace a stored case even if its version is not newer")
	caseBuildCmd.Flags().StringP("output", "o", "", "Write the document to this file instead of stdout")
	caseShowCmd.Flags().Bool("yaml", false, "Print the canonical case document")

	caseCmd.AddCommand(caseValidateCmd)
	caseCmd.AddCommand(caseImportCmd)
	caseCmd.AddCommand(caseBuildCmd)
	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseShowCmd)
}
