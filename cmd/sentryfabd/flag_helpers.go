package main

import "strings"

// reorderArgs moves flags before positional arguments so Go's flag
// parser sees them regardless of where the operator put them.
// boolFlags names flags that take no value. All other flags are
// assumed to consume the next argument as their value.
//
// Example:
//
//	reorderArgs(["10.0.0.2", "9100", "9200", "SS", "--config", "c.yaml"], nil)
//	→ ["--config", "c.yaml", "10.0.0.2", "9100", "9200", "SS"]
func reorderArgs(args []string, boolFlags map[string]bool) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if boolFlags[name] {
				continue
			}
			if i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}
