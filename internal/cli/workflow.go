package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fleet/internal/catalog"
	"github.com/shaiso/Fleet/internal/engine"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// ErrInvalidWorkflows — хотя бы один файл не прошёл валидацию.
var ErrInvalidWorkflows = errors.New("invalid workflow files")

// NewWorkflowCmd создаёт группу команд для каталога workflow.
func NewWorkflowCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Validate and list workflow definitions",
	}

	cmd.AddCommand(
		newWorkflowValidateCmd(outputFn),
		newWorkflowListCmd(backendFn, outputFn),
	)

	return cmd
}

// validationReport — результат проверки одного файла.
type validationReport struct {
	File       string   `json:"file"`
	WorkflowID string   `json:"workflowId,omitempty"`
	Valid      bool     `json:"valid"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func newWorkflowValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate workflow files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			reports := make([]validationReport, 0, len(args))
			invalid := 0
			for _, path := range args {
				r := validationReport{File: path, Valid: true}

				wf, err := catalog.ParseFile(path)
				if err != nil {
					r.Valid = false
					r.Error = err.Error()
					invalid++
				} else {
					r.WorkflowID = wf.ID
					r.Warnings = engine.Lint(wf)
				}
				reports = append(reports, r)
			}

			rows := make([][]string, len(reports))
			for i, r := range reports {
				status := "ok"
				message := strings.Join(r.Warnings, "; ")
				if !r.Valid {
					status = "invalid"
					message = r.Error
				} else if len(r.Warnings) > 0 {
					status = "warning"
				}
				rows[i] = []string{r.File, orDash(r.WorkflowID), status, orDash(message)}
			}

			if err := out.Print([]string{"FILE", "WORKFLOW", "STATUS", "MESSAGE"}, rows, reports); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidWorkflows, invalid, len(args))
			}
			return nil
		},
	}
}

func newWorkflowListCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows in the configured directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			c := catalog.New(backendFn().WorkflowsDir(), telemetry.Discard())
			if err := c.Reload(); err != nil {
				return err
			}

			wfs := c.List()
			rows := make([][]string, len(wfs))
			for i, wf := range wfs {
				timeout := "-"
				if wf.TimeoutMs > 0 {
					timeout = strconv.Itoa(wf.TimeoutMs) + "ms"
				}
				rows[i] = []string{wf.ID, orDash(wf.Name), strconv.Itoa(len(wf.Steps)), timeout}
			}

			return out.Print([]string{"ID", "NAME", "STEPS", "TIMEOUT"}, rows, wfs)
		},
	}
}
