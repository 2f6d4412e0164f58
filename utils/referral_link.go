package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ReferralLink is the deep link a user shares; Telegram passes the payload to /start.
func ReferralLink(botName string, telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", strings.TrimPrefix(botName, "@"), telegramID)
}

// ParseStartPayload extracts the referrer ID from a /start argument. It returns
// nil for an empty, malformed or self-referencing payload.
func ParseStartPayload(payload string, telegramID int64) *int64 {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 || id == telegramID {
		return nil
	}
	return &id
}

// ParseHandle normalises a "@handle" argument. ok is false when nothing usable was given.
func ParseHandle(arg string) (handle string, ok bool) {
	handle = strings.TrimPrefix(strings.TrimSpace(arg), "@")
	if handle == "" || strings.ContainsAny(handle, " \t\n") {
		return "", false
	}
	return handle, true
}
