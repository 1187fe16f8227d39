package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/drover/pkg/cli/config"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/infra/build"
	"github.com/m-mizutani/drover/pkg/usecase"
)

func cmdScan() *cli.Command {
	var (
		containersCfg config.Containers
		containerID   string
	)

	flags := containersCfg.Flags()
	flags = append(flags, &cli.StringFlag{
		Name:        "container",
		Usage:       "Scan only this container (default: all)",
		Destination: &containerID,
	})

	return &cli.Command{
		Name:  "scan",
		Usage: "Run a one-shot full scan and print the result",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			containers, err := containersCfg.Load()
			if err != nil {
				return err
			}

			engine := usecase.New(build.NewLogExecutor())
			for _, container := range containers {
				engine.AddContainer(container)
			}

			failed := 0
			for _, container := range containers {
				if containerID != "" && container.ID() != containerID {
					continue
				}

				result, err := engine.Scan(ctx, container.ID())
				if err != nil {
					return err
				}
				printScanResult(result)
				if result.Status == model.ScanFailure {
					failed++
				}
			}

			if failed > 0 {
				return goerr.New("scan failed", goerr.V("containers", failed))
			}
			return nil
		},
	}
}

func printScanResult(result *model.ScanResult) {
	if result.Status == model.ScanFailure {
		fmt.Printf("%s container %s: scan aborted, job set unchanged\n",
			color.RedString("✗"), color.New(color.Bold).Sprint(result.ContainerID))
		for _, se := range result.SourceErrors {
			fmt.Printf("    %s %s\n", color.YellowString(se.SourceID+":"), se.Message)
		}
		return
	}

	fmt.Printf("%s container %s: %d created, %d built, %d dead, %d deleted (%s)\n",
		color.GreenString("✓"),
		color.New(color.Bold).Sprint(result.ContainerID),
		result.Created, result.Built, result.Deadened, result.Deleted,
		result.Duration.Round(time.Millisecond))
}
