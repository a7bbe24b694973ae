package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env files from the working directory and the data
// directory. Variables already set in the process win. Returns the files
// that were loaded.
func LoadEnv(dataDir string) []string {
	files := []string{".env"}
	if dataDir != "" {
		files = append(files, filepath.Join(dataDir, ".env"))
	}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
