package cli

import (
	"github.com/spf13/cobra"

	"github.com/askiada/go-looprelax/internal/modelio"
	"github.com/askiada/go-looprelax/pkg/pipeline/drawer"
	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

func (a *App) newTopologyCommand() *cobra.Command {
	var (
		regions  string
		terminal bool
	)
	cmd := &cobra.Command{
		Use:   "topology MODEL --regions FILE",
		Short: "Print the topology built for the regions of a model as a DOT graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pose, err := modelio.ReadPose(args[0])
			if err != nil {
				return NewExitError(ExitFatal, err)
			}
			set, err := modelio.ReadRegions(regions)
			if err != nil {
				return NewExitError(ExitFatal, err)
			}
			topo, err := topology.Build(pose.Len(), set, terminal)
			if err != nil {
				return fatal(err, "unable to build topology")
			}

			return drawer.WriteTopology(a.Out, topo)
		},
	}
	cmd.Flags().StringVar(&regions, "regions", "", "region file")
	cmd.Flags().BoolVar(&terminal, "terminal", false, "also cut regions touching the chain ends")
	_ = cmd.MarkFlagRequired("regions")

	return cmd
}
