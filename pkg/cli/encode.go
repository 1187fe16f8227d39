package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/drover/pkg/utils/nameenc"
)

func cmdEncode() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Print the encoded job name of raw head names",
		ArgsUsage: "NAME [NAME...]",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("no head names given")
			}
			for _, name := range c.Args().Slice() {
				fmt.Printf("%s %s %s\n", name, color.HiBlackString("->"), nameenc.Encode(name))
			}
			return nil
		},
	}
}
