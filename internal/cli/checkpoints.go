package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
)

const (
	actionList  = "list"
	actionClear = "clear"
)

func (a *App) newCheckpointsCommand() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:       "checkpoints list|clear --tag TAG",
		Short:     "List or clear the checkpoints of a run",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{actionList, actionClear},
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeBackend, err := a.persistentCheckpoints()
			if err != nil {
				return NewExitError(ExitFatal, err)
			}
			defer closeBackend()

			return a.checkpoints(checkpoint.New(backend, checkpoint.WithLogger(a.logger)), args[0], tag)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "run tag")
	_ = cmd.MarkFlagRequired("tag")

	return cmd
}

func (a *App) checkpoints(c *checkpoint.Checkpointer, action, tag string) error {
	switch action {
	case actionList:
		recs, err := c.List(tag)
		if err != nil {
			return fatal(err, "unable to list checkpoints")
		}
		return errors.Wrap(renderRecords(a.Out, tag, recs), "unable to render checkpoints")
	case actionClear:
		err := c.Clear(tag)
		if err != nil {
			return fatal(err, "unable to clear checkpoints")
		}
		_, err = fmt.Fprintln(a.Out, styleTitle.Render("cleared checkpoints of "+tag))
		return err
	default:
		return NewExitError(ExitFatal, errors.Wrapf(ErrUnknownAction, "%q, want %s or %s", action, actionList, actionClear))
	}
}
