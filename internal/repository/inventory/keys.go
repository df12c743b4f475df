package inventory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/lexdrill/internal/db"
	"github.com/kailas-cloud/lexdrill/internal/domain"
)

type keys struct {
	prefix string
}

func (k keys) drills(userID string, mode domain.Mode, itemID int64) string {
	return fmt.Sprintf("%suser:%s:mode:%s:vocab:%d:drills", k.prefix, userID, mode, itemID)
}

func (k keys) stats(userID string) string {
	return k.prefix + "user:" + userID + ":inventory:stats"
}

func (k keys) buffer() string {
	return k.prefix + "buffer:replenish_drills"
}

// userPattern matches every drill list of a user, optionally within one mode.
func (k keys) userPattern(userID string, mode domain.Mode) string {
	m := "*"
	if mode != "" {
		m = db.EscapeGlob(string(mode))
	}
	return k.prefix + "user:" + db.EscapeGlob(userID) + ":mode:" + m + ":vocab:*:drills"
}

func bufferMember(userID string, mode domain.Mode, itemID int64) string {
	return userID + ":" + string(mode) + ":" + strconv.FormatInt(itemID, 10)
}

// parseBufferMember splits "{user}:{mode}:{item}". The user id may itself contain ':'.
func parseBufferMember(m string) (userID string, mode domain.Mode, itemID int64, ok bool) {
	i := strings.LastIndexByte(m, ':')
	if i <= 0 {
		return "", "", 0, false
	}
	id, err := strconv.ParseInt(m[i+1:], 10, 64)
	if err != nil {
		return "", "", 0, false
	}
	rest := m[:i]
	j := strings.LastIndexByte(rest, ':')
	if j <= 0 || j == len(rest)-1 {
		return "", "", 0, false
	}
	return rest[:j], domain.Mode(rest[j+1:]), id, true
}

func emergencyJobID(userID string, mode domain.Mode, itemID int64) string {
	return "replenish:" + bufferMember(userID, mode, itemID)
}

func batchEmergencyJobID(userID string, mode domain.Mode, unixMinute int64) string {
	return fmt.Sprintf("replenish-batch:%s:%s:%d", userID, mode, unixMinute)
}
