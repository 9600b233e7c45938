package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// NewWorkerID builds a unique identifier based on hostname, pid, and random suffix.
func NewWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), randomHex(6))
}

// NewTokenKey returns a fresh 256-bit token key, hex encoded.
func NewTokenKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewTicketCode returns a short human-facing ticket reference such as "TK-3F9A0C1B".
func NewTicketCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TK-" + strings.ToUpper(id[:8])
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
