package bootstrap

import (
	"fmt"
	"strings"

	"github.com/treestat/treestat/internal/completion"
)

// bashCompletionScript renders a bash completion script from the flag and
// command metadata.
func bashCompletionScript() string {
	flags := make([]string, 0, len(completion.GetFlags()))
	for _, f := range completion.GetFlags() {
		flags = append(flags, "--"+f.Name)
	}
	cmds := make([]string, 0, len(completion.GetCommands()))
	for _, c := range completion.GetCommands() {
		cmds = append(cmds, c.Name)
	}

	var b strings.Builder
	b.WriteString("# bash completion for treestat\n")
	b.WriteString("_treestat() {\n")
	b.WriteString("    local cur=\"${COMP_WORDS[COMP_CWORD]}\"\n")
	fmt.Fprintf(&b, "    local commands=%q\n", strings.Join(cmds, " "))
	fmt.Fprintf(&b, "    local flags=%q\n", strings.Join(flags, " "))
	b.WriteString(`    if [[ "$cur" == -* ]]; then
        COMPREPLY=( $(compgen -W "$flags" -- "$cur") )
    else
        COMPREPLY=( $(compgen -W "$commands" -- "$cur") )
    fi
}
complete -F _treestat treestat
`)
	return b.String()
}

// zshCompletionScript renders a zsh completion script from the flag and
// command metadata. Flags with enumerated values complete those values.
func zshCompletionScript() string {
	var b strings.Builder
	b.WriteString("#compdef treestat\n\n")
	b.WriteString("_treestat() {\n")
	b.WriteString("    local -a commands flags\n")
	b.WriteString("    commands=(\n")
	for _, c := range completion.GetCommands() {
		fmt.Fprintf(&b, "        '%s:%s'\n", c.Name, zshEscape(c.Description))
	}
	b.WriteString("    )\n")
	b.WriteString("    flags=(\n")
	for _, f := range completion.GetFlags() {
		if !f.HasValue {
			fmt.Fprintf(&b, "        '--%s[%s]'\n", f.Name, zshEscape(f.Description))
			continue
		}
		values := ""
		if len(f.Values) > 0 {
			values = "(" + strings.Join(f.Values, " ") + ")"
		}
		fmt.Fprintf(&b, "        '--%s=[%s]:%s:%s'\n",
			f.Name, zshEscape(f.Description), strings.ToLower(f.ValueHint), values)
	}
	b.WriteString("    )\n")
	b.WriteString("    _arguments $flags '1:command:->cmds' '*::arg:->args'\n")
	b.WriteString("    case $state in\n")
	b.WriteString("        cmds) _describe 'command' commands ;;\n")
	b.WriteString("    esac\n")
	b.WriteString("}\n\n")
	b.WriteString("_treestat\n")
	return b.String()
}

func zshEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
