package intent

import (
	"fmt"
	"strings"

	"github.com/novabot/nova/internal/execution"
)

// Summary renders the numbered plan shown before execution.
func Summary(actions []execution.Action, nativeTicker string) string {
	if len(actions) == 0 {
		return "No actions planned."
	}
	lines := make([]string, 0, len(actions)+1)
	lines = append(lines, "Planned actions:")
	for i, action := range actions {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, execution.Describe(action, nativeTicker)))
	}
	return strings.Join(lines, "\n")
}

// Descriptions returns one Describe line per action.
func Descriptions(actions []execution.Action, nativeTicker string) []string {
	out := make([]string, 0, len(actions))
	for _, action := range actions {
		out = append(out, execution.Describe(action, nativeTicker))
	}
	return out
}
