package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserProfile is the scoring input. Either Text is set (free-text biography) or the
// structured fields are.
type UserProfile struct {
	Text           string   `json:"text,omitempty"`
	Username       string   `json:"username,omitempty"`
	PhoneNumber    string   `json:"phoneNumber,omitempty"`
	School         string   `json:"school,omitempty"`
	Major          string   `json:"major,omitempty"`
	InterestFields []string `json:"interestFields,omitempty"`
	IntervalDays   int      `json:"intervalDays,omitempty" validate:"gte=0,lte=365"`
	AlarmTime      string   `json:"alarmTime,omitempty"`
}

// UnmarshalJSON accepts either a JSON string (free text) or an object.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*p = UserProfile{Text: text}
		return nil
	}
	type plain UserProfile
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("user profile: %w", err)
	}
	*p = UserProfile(out)
	return nil
}

// IsEmpty reports whether the profile has nothing to score against.
func (p UserProfile) IsEmpty() bool {
	return strings.TrimSpace(p.Text) == "" &&
		strings.TrimSpace(p.Major) == "" &&
		strings.TrimSpace(p.School) == "" &&
		len(p.Interests()) == 0
}

// Interests returns the non-blank interest fields.
func (p UserProfile) Interests() []string {
	out := make([]string, 0, len(p.InterestFields))
	for _, f := range p.InterestFields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// PromptText renders the profile for a language-model prompt.
func (p UserProfile) PromptText() string {
	if text := strings.TrimSpace(p.Text); text != "" {
		return text
	}
	var b strings.Builder
	if p.School != "" {
		fmt.Fprintf(&b, "School: %s\n", strings.TrimSpace(p.School))
	}
	if p.Major != "" {
		fmt.Fprintf(&b, "Major: %s\n", strings.TrimSpace(p.Major))
	}
	if interests := p.Interests(); len(interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(interests, ", "))
	}
	return strings.TrimSpace(b.String())
}

// Recipient is a notification target.
type Recipient struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact" validate:"required"`
}
