package staff

import (
	"encoding/json"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/model"
)

// ParseResponse decodes the model's reply into staff members. It accepts a
// bare JSON array or an object with a "staff" array, optionally wrapped in a
// markdown code fence. Members without a name are dropped and duplicates
// (same name, case-insensitive) keep the first occurrence.
func ParseResponse(text string) ([]model.StaffMember, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return nil, eris.New("staff: empty model response")
	}

	var members []model.StaffMember
	if strings.HasPrefix(raw, "{") {
		var wrapped struct {
			Staff []model.StaffMember `json:"staff"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, eris.Wrap(err, "staff: parse model json")
		}
		members = wrapped.Staff
	} else if err := json.Unmarshal([]byte(raw), &members); err != nil {
		return nil, eris.Wrap(err, "staff: parse model json")
	}

	out := make([]model.StaffMember, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		m.Name = strings.Join(strings.Fields(m.Name), " ")
		m.Title = strings.Join(strings.Fields(m.Title), " ")
		m.Email = cleanEmail(m.Email)
		m.Phone = strings.TrimSpace(m.Phone)
		if m.Name == "" {
			continue
		}
		k := strings.ToLower(m.Name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out, nil
}

// cleanJSON extracts the JSON value from text that may carry markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	arrStart, objStart := strings.Index(text, "["), strings.Index(text, "{")
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	case objStart >= 0:
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	}
	return strings.TrimSpace(text)
}

func cleanEmail(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "mailto:")
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(addr.Address)
}
