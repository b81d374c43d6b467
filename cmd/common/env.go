package common

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads variables from path into the process environment. A
// missing file is not an error; it reports whether a file was loaded.
// Variables already set in the environment win.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err := godotenv.Load(path); err != nil {
		return false, err
	}
	return true, nil
}
