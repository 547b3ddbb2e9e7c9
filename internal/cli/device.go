package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/state"
)

// NewDeviceCmd создаёт группу команд для состояния устройств.
func NewDeviceCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect and clear device state",
	}

	cmd.AddCommand(
		newDeviceShowCmd(backendFn, outputFn),
		newDeviceClearCmd(backendFn, outputFn),
	)

	return cmd
}

// deviceView — состояние устройства вместе со счётчиком подряд идущих ошибок.
type deviceView struct {
	domain.DeviceRuntimeState
	ConsecutiveErrors int `json:"consecutiveErrors"`
}

func newDeviceShowCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show device runtime state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deviceID := args[0]

			devices, err := backendFn().Devices(ctx)
			if err != nil {
				return err
			}

			st, err := devices.GetDeviceState(ctx, deviceID)
			if errors.Is(err, state.ErrNotFound) {
				st = &domain.DeviceRuntimeState{DeviceID: deviceID, State: domain.DeviceIdle}
			} else if err != nil {
				return err
			}

			count, err := devices.ErrorCount(ctx, deviceID)
			if err != nil {
				return err
			}

			view := deviceView{DeviceRuntimeState: *st, ConsecutiveErrors: count}
			return outputFn().Fields([][2]string{
				{"Device", view.DeviceID},
				{"State", string(view.State)},
				{"Node", orDash(view.NodeID)},
				{"Workflow", orDash(view.WorkflowID)},
				{"Step", orDash(view.CurrentStep)},
				{"Progress", strconv.Itoa(view.Progress) + "%"},
				{"Errors", strconv.Itoa(view.ConsecutiveErrors)},
				{"Last error", orDash(view.ErrorMessage)},
				{"Updated", formatTime(&view.UpdatedAt)},
			}, view)
		},
	}
}

func newDeviceClearCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "clear ID",
		Short: "Reset error counter and release device from quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			devices, err := backendFn().Devices(ctx)
			if err != nil {
				return err
			}

			if err := devices.ClearDevice(ctx, args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Device cleared: %s", args[0]))
			return nil
		},
	}
}

// NewNodeCmd создаёт группу команд для статуса воркеров.
func NewNodeCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect worker nodes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show worker heartbeat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			devices, err := backendFn().Devices(ctx)
			if err != nil {
				return err
			}

			st, err := devices.GetNodeStatus(ctx, args[0])
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("node %s: no heartbeat", args[0])
			}
			if err != nil {
				return err
			}

			return outputFn().Fields([][2]string{
				{"Node", st.NodeID},
				{"Status", st.Status},
				{"Execution", orDash(st.ExecutionID)},
				{"Updated", formatTime(&st.UpdatedAt)},
			}, st)
		},
	})

	return cmd
}
