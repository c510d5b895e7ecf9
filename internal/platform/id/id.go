// Package id generates opaque identifiers for chat entities.
package id

import (
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 encoding of a random
// version 4 UUID.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// NewEntityID returns "<kind>-<millis base36>-<random>", embedding the entity
// kind and creation time so ids stay readable in logs and sort roughly by age.
func NewEntityID(kind string, now time.Time) (string, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", fmt.Errorf("entity kind is required")
	}
	random, err := NewID()
	if err != nil {
		return "", err
	}
	return kind + "-" + strconv.FormatInt(now.UTC().UnixMilli(), 36) + "-" + random, nil
}
