package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Helper to override a string field when the variable is set and non-empty
func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Helper to override an int field; invalid values are logged and ignored
func envInt(key string, dst *int) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return
	}
	val, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[WARN] invalid integer for %s=%q, keeping %d", key, valueStr, *dst)
		return
	}
	*dst = val
}

// Helper to override an int64 field, such as a Telegram chat id
func envInt64(key string, dst *int64) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return
	}
	val, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("[WARN] invalid integer for %s=%q, keeping %d", key, valueStr, *dst)
		return
	}
	*dst = val
}

// Helper to override a duration field given in whole seconds ("60") or Go syntax ("1m30s")
func envSeconds(key string, dst *time.Duration) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("[WARN] invalid duration for %s=%q, keeping %s", key, valueStr, *dst)
		return
	}
	*dst = d
}
