package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/denismitr/flowstore"
	"github.com/denismitr/flowstore/store/dbstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func openFileDB(c *cli.Context) (*flowstore.DB, flowstore.Closer, error) {
	cfg := configOf(c)

	path := cfg.DBPath
	if v := c.String("db"); v != "" {
		path = v
	}

	if _, err := os.Stat(path); err != nil {
		return nil, nil, errors.Wrapf(err, "database file %s", path)
	}

	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	dbCfg := dbConfig(cfg, log)
	dbCfg.DisableAutoVacuum = true

	return flowstore.Open(path, dbCfg)
}

func runVacuum(c *cli.Context) error {
	db, closer, err := openFileDB(c)
	if err != nil {
		return err
	}
	defer closer()

	if err := db.Vacuum(); err != nil {
		return errors.Wrap(err, "vacuum failed")
	}

	fmt.Fprintf(c.App.Writer, "vacuumed: %d records\n", db.Count())
	return nil
}

func runDump(c *cli.Context) error {
	db, closer, err := openFileDB(c)
	if err != nil {
		return err
	}
	defer closer()

	asJSON := c.Bool("json")
	enc := json.NewEncoder(c.App.Writer)

	var writeErr error
	err = dbstore.New(db).Owners(context.Background(), func(ownerID string, doc *flowstore.Document) bool {
		if asJSON {
			writeErr = enc.Encode(json.RawMessage(doc.Value()))
		} else {
			_, writeErr = fmt.Fprintf(c.App.Writer, "%s\t%d\n", ownerID, doc.IntOrDefault("apps.#", 0))
		}

		return writeErr == nil
	})

	if err != nil {
		return err
	}

	return writeErr
}
