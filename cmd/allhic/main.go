/**
 * Filename: /Users/htang/code/allhic/main.go
 * Path: /Users/htang/code/allhic
 * Created Date: Wednesday, January 3rd 2018, 11:21:45 am
 * Author: htang
 *
 * Copyright (c) 2018 Haibao Tang
 */

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/allhic-core/allhic"
	logging "github.com/op/go-logging"
	"github.com/urfave/cli"
)

// init customizes how cli lays out the command interface.
// Logo banner (Varsity style):
// http://patorjk.com/software/taag/#p=testall&f=3D-ASCII&t=ALLHIC
func init() {
	cli.AppHelpTemplate = `
     _       _____     _____     ____  ____  _____   ______
    / \     |_   _|   |_   _|   |_   ||   _||_   _|.' ___  |
   / _ \      | |       | |       | |__| |    | | / .'   \_|
  / ___ \     | |   _   | |   _   |  __  |    | | | |
_/ /   \ \_  _| |__/ | _| |__/ | _| |  | |_  _| |_\ ` + "`" + `.___.'\
|____| |____||________||________||____||____||_____|` + "`" + `.____ .'

` + cli.AppHelpTemplate
}

// main is the entrypoint for the entire program, routes to commands.
func main() {
	logging.SetBackend(allhic.BackendFormatter)

	app := cli.NewApp()
	app.Compiled = time.Now()
	app.Copyright = "(c) Haibao Tang 2017-2018"
	app.Name = "ALLHIC"
	app.Usage = "Genome scaffolding based on Hi-C data"
	app.Version = allhic.Version

	app.Commands = []cli.Command{
		scaffoldCommand,
		buildCommand,
		dumpCommand,
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var scaffoldCommand = cli.Command{
	Name:  "scaffold",
	Usage: "Scaffold contigs using Hi-C links",
	UsageText: `
	allhic scaffold contigs.fa links.bin [options]

Scaffold function:
Given a contig FASTA and a binary Hi-C link dump (see "allhic dump"), run
the pipeline driver (contig break, per-resolution scaffold rounds, and
finalization) and write the resulting AGP and FASTA under the output
prefix.
`,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "a", Usage: "seed layout from this AGP instead of one contig per scaffold"},
		cli.StringFlag{Name: "r", Value: "50000,100000,500000", Usage: "comma-separated bin resolutions, finest first"},
		cli.StringFlag{Name: "e", Usage: "comma-separated restriction enzyme motifs, e.g. GATC or GANTC"},
		cli.IntFlag{Name: "l", Value: 10000, Usage: "minimum contig length to scaffold"},
		cli.IntFlag{Name: "q", Value: 10, Usage: "minimum mapq for a link to count"},
		cli.BoolFlag{Name: "no-contig-ec", Usage: "disable the contig mis-assembly break stage"},
		cli.BoolFlag{Name: "no-scaffold-ec", Usage: "disable the scaffold-joint break stage"},
		cli.BoolFlag{Name: "no-mem-check", Usage: "disable the NOMEM resolution-escalation check"},
		cli.StringFlag{Name: "o", Value: "allhic", Usage: "output file prefix"},
		cli.IntFlag{Name: "v", Value: 0, Usage: "verbosity (0 = info, >0 = debug)"},
	},
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			cli.ShowSubcommandHelp(c)
			return cli.NewExitError("Must specify contigs.fa and links.bin", 1)
		}
		fastafile := c.Args().Get(0)
		linkfile := c.Args().Get(1)

		cfg := allhic.DefaultConfig()
		cfg.MinContigLength = c.Int("l")
		cfg.MinMapQ = uint8(c.Int("q"))
		cfg.ContigBreak = !c.Bool("no-contig-ec")
		cfg.ScaffoldBreak = !c.Bool("no-scaffold-ec")
		cfg.MemCheck = !c.Bool("no-mem-check")
		cfg.OutPrefix = c.String("o")
		cfg.Verbosity = c.Int("v")
		allhic.SetVerbosity(cfg.Verbosity)

		resolutions, err := parseResolutions(c.String("r"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		cfg.Resolutions = resolutions

		dict := allhic.NewDictionary(cfg.MinContigLength)
		builder := allhic.NewBuilder(cfg)
		if err := builder.LoadFastaSizes(fastafile, dict); err != nil {
			return exitForError(err)
		}

		var oracle allhic.RestrictionSiteOracle
		if motifs := allhic.ExpandMotifs(c.String("e")); len(motifs) > 0 {
			cfg.Enzymes = motifs
			f, err := os.Open(fastafile)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			oracle, err = allhic.ScanRestrictionSites(f, motifs)
			f.Close()
			if err != nil {
				return exitForError(err)
			}
		}

		var seed *allhic.Layout
		if agpfile := c.String("a"); agpfile != "" {
			f, err := os.Open(agpfile)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			rows, err := allhic.ParseAGP(f)
			f.Close()
			if err != nil {
				return exitForError(err)
			}
			seed, err = allhic.MakeLayout(rows, dict, uint32(cfg.GapSize))
			if err != nil {
				return exitForError(err)
			}
		} else {
			seed = allhic.IdentityLayout(dict)
		}

		driver := allhic.NewDriver(cfg, dict, oracle)
		final, err := driver.Run(linkfile, seed)
		if err != nil {
			return exitForError(err)
		}

		agpPath := cfg.OutPrefix + "_scaffolds_final.agp"
		if err := builder.WriteAGP(final, dict, agpPath); err != nil {
			return exitForError(err)
		}
		fastaPath := cfg.OutPrefix + "_scaffolds_final.fasta"
		if err := builder.WriteFasta(final, dict, fastafile, fastaPath); err != nil {
			return exitForError(err)
		}
		return nil
	},
}

var buildCommand = cli.Command{
	Name:  "build",
	Usage: "Build genome release",
	UsageText: `
	allhic build tourfile contigs.fasta [options]

Build function:
Convert a tour file or an AGP into the standard AGP file, which is then
converted into a FASTA genome release.
`,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "o", Usage: "output file prefix (default: tourfile's path without its extension)"},
		cli.IntFlag{Name: "gap-size", Value: 100, Usage: "gap length inserted between placed contigs"},
	},
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			cli.ShowSubcommandHelp(c)
			return cli.NewExitError("Must specify tourfile and fastafile", 1)
		}
		tourfile := c.Args().Get(0)
		fastafile := c.Args().Get(1)

		cfg := allhic.DefaultConfig()
		cfg.GapSize = c.Int("gap-size")
		cfg.OutPrefix = c.String("o")
		if cfg.OutPrefix == "" {
			cfg.OutPrefix = allhic.RemoveExt(tourfile)
		}

		dict := allhic.NewDictionary(0)
		builder := allhic.NewBuilder(cfg)
		if err := builder.LoadFastaSizes(fastafile, dict); err != nil {
			return exitForError(err)
		}

		f, err := os.Open(tourfile)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer f.Close()

		var layout *allhic.Layout
		if strings.HasSuffix(tourfile, ".agp") {
			rows, err := allhic.ParseAGP(f)
			if err != nil {
				return exitForError(err)
			}
			layout, err = allhic.MakeLayout(rows, dict, uint32(cfg.GapSize))
			if err != nil {
				return exitForError(err)
			}
		} else {
			oo, err := allhic.ParseTour(f, dict)
			if err != nil {
				return exitForError(err)
			}
			layout, err = oo.ToLayout(dict, uint32(cfg.GapSize))
			if err != nil {
				return exitForError(err)
			}
		}

		if err := builder.WriteAGP(layout, dict, cfg.OutPrefix+".agp"); err != nil {
			return exitForError(err)
		}
		if err := builder.WriteFasta(layout, dict, fastafile, cfg.OutPrefix+".fasta"); err != nil {
			return exitForError(err)
		}
		return nil
	},
}

var dumpCommand = cli.Command{
	Name:  "dump",
	Usage: "Dump a BAM file of Hi-C alignments to the binary link format",
	UsageText: `
	allhic dump bamfile links.bin

Dump function:
Scan a coordinate-sorted BAM of Hi-C read-pair alignments and write the
fixed-width binary link records "scaffold" reads, deduplicating by read
name.
`,
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			cli.ShowSubcommandHelp(c)
			return cli.NewExitError("Must specify bamfile and output path", 1)
		}
		bamfile := c.Args().Get(0)
		outfile := c.Args().Get(1)

		in, err := os.Open(bamfile)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer in.Close()

		out, err := os.Create(outfile)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer out.Close()

		n, err := allhic.DumpBAM(in, out)
		if err != nil {
			return exitForError(err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d link records to %s\n", n, outfile)
		return nil
	},
}

// parseResolutions splits a comma-separated bin-width list into ints,
// in the order given (finest first, by convention), rejecting anything
// non-numeric or an empty list.
func parseResolutions(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("resolution %q: %w", field, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no resolutions given")
	}
	return out, nil
}

// exitForError maps a PipelineError's Kind to the spec's exit codes: 14
// for NOBANDS, 15 for NOMEM, 1 for every other fatal condition.
func exitForError(err error) error {
	if pe, ok := err.(*allhic.PipelineError); ok {
		switch pe.Kind {
		case allhic.NoBands:
			return cli.NewExitError(pe.Error(), 14)
		case allhic.NoMem:
			return cli.NewExitError(pe.Error(), 15)
		}
	}
	return cli.NewExitError(err.Error(), 1)
}
