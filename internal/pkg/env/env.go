package env

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file. OS environment variables
// override nothing here; they are the fallback for containerized runs.
var Env map[string]string

// GetEnv returns the configured value for key, preferring the .env file,
// then the process environment, then def.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the .env file, searching from the working directory up
// to the project root (binaries run from cmd/rafflemaster or the root).
func SetupEnvFile() {
	envFiles := []string{
		".env",
		"../../.env",
		"../../../.env",
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	panic("No .env file found in any of the expected locations")
}

// IsDev reports whether APP_ENV is set to dev.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
