package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Fleet/internal/domain"
)

// NewJobCmd создаёт группу команд для управления job'ами.
func NewJobCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(backendFn, outputFn),
		newJobShowCmd(backendFn, outputFn),
		newJobCancelCmd(backendFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var devices []string
	var params []string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job for a set of devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend := backendFn()
			out := outputFn()

			parsed, err := ParseParams(params)
			if err != nil {
				return err
			}

			jobs, err := backend.Jobs(ctx)
			if err != nil {
				return err
			}

			req := domain.NewJobRequest(workflowID, devices, parsed)
			exec, err := jobs.Create(ctx, req)
			if err != nil {
				return err
			}

			// Запись уже в QUEUED: без RabbitMQ её подхватит polling воркера
			queue, err := backend.Queue(ctx)
			if err == nil {
				err = queue.PublishJobExecute(ctx, req)
			}
			if err != nil {
				out.Warn(fmt.Sprintf("job.execute not published, workers will pick the job up by polling: %v", err))
			}

			out.Success(fmt.Sprintf("Job submitted: %s", exec.ID))
			return printExecution(out, exec)
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Workflow ID")
	cmd.Flags().StringArrayVar(&devices, "device", nil, "Device ID (repeatable)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Job parameter as KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("workflow")

	return cmd
}

func newJobShowCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			jobs, err := backendFn().Jobs(ctx)
			if err != nil {
				return err
			}

			exec, err := jobs.GetByID(ctx, args[0])
			if err != nil {
				return err
			}

			if err := printExecution(out, exec); err != nil {
				return err
			}
			if exec.Result == nil || len(exec.Result.Failed) == 0 || out.jsonMode {
				return nil
			}

			rows := make([][]string, len(exec.Result.Failed))
			for i, f := range exec.Result.Failed {
				rows[i] = []string{f.DeviceID, f.Error}
			}
			fmt.Fprintln(out.w)
			return out.Table([]string{"FAILED_DEVICE", "ERROR"}, rows)
		},
	}
}

func newJobCancelCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			jobs, err := backendFn().Jobs(ctx)
			if err != nil {
				return err
			}

			if err := jobs.Cancel(ctx, args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Job cancelled: %s", args[0]))
			return nil
		},
	}
}

func printExecution(out *Output, exec *domain.Execution) error {
	fields := [][2]string{
		{"ID", exec.ID},
		{"Workflow", exec.WorkflowID},
		{"Devices", strings.Join(exec.DeviceIDs, ",")},
		{"Status", string(exec.Status)},
		{"Progress", strconv.Itoa(exec.Progress) + "%"},
		{"Node", orDash(exec.NodeID)},
		{"Created", formatTime(&exec.CreatedAt)},
		{"Started", formatTime(exec.StartedAt)},
		{"Finished", formatTime(exec.FinishedAt)},
	}
	if exec.Result != nil {
		fields = append(fields,
			[2]string{"Result", string(exec.Result.Status)},
			[2]string{"Succeeded", strconv.Itoa(len(exec.Result.Succeeded))},
			[2]string{"Failed", strconv.Itoa(len(exec.Result.Failed))},
		)
	}
	if exec.Error != "" {
		fields = append(fields, [2]string{"Error", exec.Error})
	}
	return out.Fields(fields, exec)
}

// ParseParams разбирает KEY=VALUE. Значение читается как YAML-скаляр:
// 42 — число, true — bool, остальное — строка.
func ParseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
