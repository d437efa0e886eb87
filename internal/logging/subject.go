package logging

import "strings"

// FormatSubject builds the owner/task/stage subject string used in console
// output, e.g. "Daemon · task 20260101T000000Z-rip (ripping)".
func FormatSubject(owner, taskID, stage string) string {
	owner = strings.TrimSpace(owner)
	taskID = strings.TrimSpace(taskID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if owner != "" {
		var formatted string
		if len(owner) > 1 {
			formatted = strings.ToUpper(owner[:1]) + strings.ToLower(owner[1:])
		} else {
			formatted = strings.ToUpper(owner)
		}
		parts = append(parts, formatted)
	}
	switch {
	case taskID != "" && stage != "":
		parts = append(parts, "task "+taskID+" ("+stage+")")
	case taskID != "":
		parts = append(parts, "task "+taskID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
