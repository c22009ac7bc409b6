package main

import "strings"

var legacyFlags = map[string]string{
	"ST": "--start-time",
	"ET": "--end-time",
	"F":  "--file",
	"P":  "--pages",
	"V":  "--verbose",
	"?":  "--help",
}

// rewriteLegacyArgs maps the classic switch syntax of the fetch command (/ST 10:00 AM, -v,
// /P 20) onto its long flags. Other commands are passed through untouched.
func rewriteLegacyArgs(args []string) []string {
	if len(args) == 0 || args[0] != "fetch" {
		return args
	}
	out := make([]string, 0, len(args))
	out = append(out, args[0])
	for _, a := range args[1:] {
		if len(a) > 1 && (a[0] == '/' || (a[0] == '-' && a[1] != '-')) {
			if long, ok := legacyFlags[strings.ToUpper(a[1:])]; ok {
				out = append(out, long)
				continue
			}
		}
		out = append(out, a)
	}
	return out
}
