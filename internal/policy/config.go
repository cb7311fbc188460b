package policy

import (
	"encoding/json"
	"maps"
)

const (
	DefaultPrefix      = "/"
	DefaultBotNickname = "LOCKBOT"
)

// Configuration is the persisted snapshot of the bot. Cookies is the opaque
// credential blob handed to chat.Client.Login and never inspected here.
type Configuration struct {
	BotNickname     string            `json:"botNickname"`
	Cookies         json.RawMessage   `json:"cookies"`
	AdminID         string            `json:"adminID"`
	Prefix          string            `json:"prefix"`
	LockedGroups    map[string]string `json:"lockedGroups"`
	LockedNicknames map[string]string `json:"lockedNicknames"`
	LockedTargets   map[string]string `json:"lockedTargets"`
}

func (c Configuration) Clone() Configuration {
	out := c
	if c.Cookies != nil {
		out.Cookies = append(json.RawMessage(nil), c.Cookies...)
	}
	out.LockedGroups = cloneMap(c.LockedGroups)
	out.LockedNicknames = cloneMap(c.LockedNicknames)
	out.LockedTargets = cloneMap(c.LockedTargets)
	return out
}

// HasCredentials reports whether Cookies holds a non-empty JSON array, the
// only shape the login capability accepts.
func (c Configuration) HasCredentials() bool {
	return ValidCredentials(c.Cookies)
}

func ValidCredentials(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false
	}
	return len(items) > 0
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
