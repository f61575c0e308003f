package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// loadEnvFile loads variables from a .env file in the working directory.
// Variables already present in the environment are not overridden and a
// missing file is not an error.
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
