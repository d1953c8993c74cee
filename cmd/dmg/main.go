package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/kestrelgb/dmgcore/dmg"
	"github.com/kestrelgb/dmgcore/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "dmg"
	app.Description = "A cycle-accurate monochrome handheld console core"
	app.Usage = "dmg [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Path to the battery save file (default: <rom>.sav)",
		},
		cli.BoolFlag{
			Name:  "sync-audio",
			Usage: "Block on audio sink instead of dropping samples when the host falls behind",
		},
		cli.BoolFlag{
			Name:  "sync-video",
			Usage: "Pace frame output to real time instead of running as fast as possible",
		},
		cli.Uint64Flag{
			Name:  "max-cycles",
			Usage: "Stop after this many machine cycles (0 = unbounded)",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run headless (required)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("dmg exited with error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("--frames requires a positive value")
	}

	romData, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("reading ROM: %w", err)
	}

	savePath := c.String("save")
	if savePath == "" {
		savePath = romPath + ".sav"
	}

	cfg := dmg.DefaultConfig()
	cfg.SyncAudio = c.Bool("sync-audio")
	cfg.SyncVideo = c.Bool("sync-video")
	cfg.MaxCycles = c.Uint64("max-cycles")

	machine, err := dmg.New(romData, cfg)
	if err != nil {
		return fmt.Errorf("loading cartridge: %w", err)
	}

	if saveData, err := os.ReadFile(savePath); err == nil {
		machine.LoadRAM(saveData)
		slog.Info("loaded save", "path", savePath, "bytes", len(saveData))
	}

	slog.Info("running", "rom", romPath, "title", machine.Title(), "frames", frames)

	limiter := timing.Limiter(timing.NewNoOpLimiter())
	if cfg.SyncVideo {
		limiter = timing.NewTickerLimiter()
	}

	for i := 0; i < frames; i++ {
		limiter.WaitForNextFrame()
		if !machine.RunFrame() {
			slog.Info("stopped at cycle cap", "max_cycles", cfg.MaxCycles, "cycles_run", machine.Cycles())
			break
		}
	}

	if save := machine.SaveRAM(); save != nil {
		if err := os.WriteFile(savePath, save, 0o644); err != nil {
			return fmt.Errorf("writing save: %w", err)
		}
		slog.Info("wrote save", "path", savePath, "bytes", len(save))
	}

	return nil
}
