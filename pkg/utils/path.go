package utils

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// CreateFolder creates each of the given directories if missing.
func CreateFolder(folders ...string) error {
	for _, folder := range folders {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", folder, err)
		}
	}
	return nil
}

// LoadEnv loads a .env file from the given directory when present. A missing
// file is not an error; real deployments configure through the environment.
func LoadEnv(dir string) {
	path := dir + "/.env"
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logrus.Warnf("[CONFIG] Failed to load %s: %v", path, err)
	}
}
