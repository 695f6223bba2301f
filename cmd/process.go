package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

var processSource string

var processCmd = &cobra.Command{
	Use:   "process <datasheet.pdf>",
	Short: "Extract one datasheet into a golden record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		task := model.NewTask(args[0], processSource)
		outcome, err := env.Orchestrator.Submit(ctx, task)
		if err != nil {
			return eris.Wrap(err, "process")
		}

		zap.L().Info("task finished",
			zap.String("task_id", task.ID),
			zap.String("kind", string(outcome.Kind)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	processCmd.Flags().StringVar(&processSource, "source", "manual", "source name recorded on the golden record")
	rootCmd.AddCommand(processCmd)
}
