package main

import (
	"fmt"

	"resumepay/pkg/config"
)

// runMigrate is the `resumepay migrate` command: prepare the configured store's
// schema, then exit. Useful for CI or manual DB setup.
func runMigrate(storage *config.Storage) error {
	if err := storage.Migrate(); err != nil {
		return fmt.Errorf("migrate %s store: %w", *storage.Kind, err)
	}
	return nil
}
