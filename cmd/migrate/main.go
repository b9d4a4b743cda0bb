// Command migrate bootstraps the database schema: every table, index and
// seed row the server expects. Run once at deploy time, ahead of the
// server binary. Idempotent.
package main

import (
	"os"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
)

func main() {
	cfg := config.Load()

	logger.Infof("migrate: connecting to %s", cfg.DatabaseURL)
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("migrate: open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.InitTables(); err != nil {
		logger.Errorf("migrate: init tables: %v", err)
		os.Exit(1)
	}

	logger.Infof("migrate: schema is up to date")
}
