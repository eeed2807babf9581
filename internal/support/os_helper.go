package support

import (
	"crypto/sha1"
	"encoding/binary"
	"os"
	"strconv"
	"strings"
)

// envValue treats a blank variable the same as an unset one.
func envValue(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func GetEnv(key, fallback string) string {
	if value, ok := envValue(key); ok {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	value, ok := envValue(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func GetEnvBool(key string, fallback bool) bool {
	value, ok := envValue(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// HashString maps a key onto a stable uint64, used to pick lock stripes.
func HashString(input string) uint64 {
	sum := sha1.Sum([]byte(input))
	return binary.BigEndian.Uint64(sum[:8])
}
