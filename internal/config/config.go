package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	ListenAddr    string
	UsersFile     string
	BetHistoryDB  string
	LogFile       string
	JWTKey        string
	InitialCredit int64
}

const defaultInitialCredit = 10000

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:    getEnv("CASINO_ADDR", ":8080"),
		UsersFile:     getEnv("CASINO_USERS_FILE", "casino-users.json"),
		BetHistoryDB:  getEnv("CASINO_BET_HISTORY_DB", "data/bet-history.db"),
		LogFile:       getEnv("CASINO_LOG_FILE", ""),
		JWTKey:        getEnv("CASINO_JWT_KEY", "dev-only-not-a-secret"),
		InitialCredit: defaultInitialCredit,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
