package policy

import (
	"strings"

	clierr "github.com/novabot/nova/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry
// allows the command it names and every subcommand below it, so "plan"
// allows "plan run".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if entry == normPath || strings.HasPrefix(normPath, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// ReadOnly reports whether a command path never signs transactions.
func ReadOnly(commandPath string) bool {
	switch normalize(commandPath) {
	case "send", "swap", "plan run", "chat", "shell":
		return false
	default:
		return true
	}
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
