package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

// LocalStaffKeyID holds the short fingerprint of the key that authenticated the request.
const LocalStaffKeyID = "staff_key_id"

// HashAPIKey returns the hex SHA-256 of a staff API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// StaffKeysFromEnv reads STAFF_API_KEYS, a comma separated list of keys, and
// returns their hashes.
func StaffKeysFromEnv() []string {
	var hashes []string
	for _, k := range strings.Split(env.GetEnv("STAFF_API_KEYS", ""), ",") {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, HashAPIKey(k))
		}
	}
	return hashes
}

// APIKeyAuthMiddleware authenticates requests carrying a staff API key header.
// Only hashes are kept in memory and compared in constant time.
func APIKeyAuthMiddleware(keyHashes []string) fiber.Handler {
	if len(keyHashes) == 0 {
		log.Warn("[APIKey] No staff API keys configured, every API request will be rejected")
	}
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		hash := HashAPIKey(apiKey)
		for _, known := range keyHashes {
			if subtle.ConstantTimeCompare([]byte(hash), []byte(known)) == 1 {
				c.Locals(LocalStaffKeyID, hash[:12])
				return c.Next()
			}
		}
		log.Warnf("[APIKey] Rejected API key from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
