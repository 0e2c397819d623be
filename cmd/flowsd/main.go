package main

import (
	"fmt"
	"os"

	"github.com/denismitr/flowstore/internal/config"
	"github.com/urfave/cli"
)

const version = "0.3.0"

type metadata struct {
	cfg *config.Config
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "flowsd: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "flowsd"
	app.Usage = "owner and app record store"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file, e",
			Value: ".env",
			Usage: "load FLOWS_* variables from `FILE` when present",
		},
		cli.StringFlag{
			Name:  "log-level, l",
			Value: "",
			Usage: "override FLOWS_LOG_LEVEL",
		},
	}

	app.Before = func(c *cli.Context) error {
		cfg, err := config.Load(c.GlobalString("env-file"))
		if err != nil {
			return err
		}

		if lvl := c.GlobalString("log-level"); lvl != "" {
			cfg.LogLevel = lvl
		}

		app.Metadata = map[string]interface{}{"config": &metadata{cfg: cfg}}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run the HTTP daemon",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Usage: "listen `ADDRESS`, overrides FLOWS_ADDR",
				},
				cli.StringFlag{
					Name:  "backend, b",
					Usage: "file, memory or redis, overrides FLOWS_BACKEND",
				},
				cli.StringFlag{
					Name:  "db, d",
					Usage: "database `FILE`, overrides FLOWS_DB_PATH",
				},
			},
			Action: runServe,
		},
		{
			Name:      "vacuum",
			Usage:     "compact a database file",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "db, d",
					Usage: "database `FILE`, overrides FLOWS_DB_PATH",
				},
			},
			Action: runVacuum,
		},
		{
			Name:  "dump",
			Usage: "list owners with their app counts",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "db, d",
					Usage: "database `FILE`, overrides FLOWS_DB_PATH",
				},
				cli.BoolFlag{
					Name:  "json, j",
					Usage: "print full owner records",
				},
			},
			Action: runDump,
		},
	}

	return app
}

func configOf(c *cli.Context) *config.Config {
	m := c.App.Metadata["config"].(*metadata)
	return m.cfg
}
