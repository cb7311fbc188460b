// Package replies holds the canned text the bot sends. The logic that picks
// a reply lives in internal/engine; this package is content only.
package replies

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Exchange struct {
	Trigger string `yaml:"trigger"`
	Reply   string `yaml:"reply"`
}

type Set struct {
	Signature string `yaml:"signature"`
	Separator string `yaml:"separator"`

	Greeting Exchange `yaml:"greeting"`
	FollowUp Exchange `yaml:"follow_up"`
	Filler   []string `yaml:"filler"`

	PermissionDenied   string `yaml:"permission_denied"`
	TargetLockedDenied string `yaml:"target_locked_denied"`
	// Onboarding has every PrefixPlaceholder replaced with the command prefix.
	Onboarding string `yaml:"onboarding"`
	// TitleLocked is appended to the mention of whoever renamed the group.
	TitleLocked string `yaml:"title_locked"`
	// GenericNames are platform placeholder names that do not identify a
	// user; the formatter looks further when it sees one.
	GenericNames []string `yaml:"generic_names"`
}

// PrefixPlaceholder marks where the command prefix goes in Onboarding.
const PrefixPlaceholder = "{prefix}"

func Default() Set {
	return Set{
		Signature: "— LOCKBOT",
		Separator: "------------------------------",
		Greeting: Exchange{
			Trigger: "hello",
			Reply:   "hello I am fine",
		},
		FollowUp: Exchange{
			Trigger: "hi kaise ho",
			Reply:   "thik hu tum kaise ho",
		},
		Filler: []string{
			"I'm here, keep talking.",
			"Noted.",
			"Interesting, tell me more.",
			"Haha, good one.",
			"Sure thing.",
			"I hear you.",
		},
		PermissionDenied:   "Permission denied: admin only.",
		TargetLockedDenied: "You don't have permission to use commands while target is locked.",
		Onboarding:         "Hello! I'm online. Use {prefix}group, {prefix}nickname or {prefix}target to manage locks.",
		TitleLocked:        "group name locked!",
		GenericNames:       []string{"facebook user"},
	}
}

// Load reads a YAML file and overlays every non-empty field on Default().
// An empty path returns Default().
func Load(path string) (Set, error) {
	set := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read replies %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}
	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return set, fmt.Errorf("decode replies %s: %w", path, err)
	}
	set.merge(override)
	if err := set.Validate(); err != nil {
		return set, fmt.Errorf("replies %s: %w", path, err)
	}
	return set, nil
}

func (s Set) Validate() error {
	if len(s.Filler) == 0 {
		return errors.New("filler pool is empty")
	}
	if strings.TrimSpace(s.Greeting.Trigger) == "" || strings.TrimSpace(s.FollowUp.Trigger) == "" {
		return errors.New("dialogue triggers must be set")
	}
	return nil
}

func (s *Set) merge(o Set) {
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setIf(&s.Signature, o.Signature)
	setIf(&s.Separator, o.Separator)
	setIf(&s.Greeting.Trigger, o.Greeting.Trigger)
	setIf(&s.Greeting.Reply, o.Greeting.Reply)
	setIf(&s.FollowUp.Trigger, o.FollowUp.Trigger)
	setIf(&s.FollowUp.Reply, o.FollowUp.Reply)
	setIf(&s.PermissionDenied, o.PermissionDenied)
	setIf(&s.TargetLockedDenied, o.TargetLockedDenied)
	setIf(&s.Onboarding, o.Onboarding)
	setIf(&s.TitleLocked, o.TitleLocked)
	if len(o.Filler) > 0 {
		s.Filler = append([]string(nil), o.Filler...)
	}
	if len(o.GenericNames) > 0 {
		s.GenericNames = append([]string(nil), o.GenericNames...)
	}
}

// OnboardingText renders the onboarding message for prefix.
func (s Set) OnboardingText(prefix string) string {
	return strings.ReplaceAll(s.Onboarding, PrefixPlaceholder, prefix)
}

// IsGenericName reports whether name is empty or one of the placeholder names.
func (s Set) IsGenericName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return true
	}
	for _, g := range s.GenericNames {
		if g != "" && strings.Contains(lower, strings.ToLower(g)) {
			return true
		}
	}
	return false
}
