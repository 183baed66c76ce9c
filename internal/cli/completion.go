package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Command describes one subcommand for help and completion output.
type Command struct {
	Name    string
	Summary string
}

// Shells lists the shells GenerateCompletion supports.
var Shells = []string{"bash", "zsh", "fish"}

var globalFlags = []string{"--config", "--log-level", "--log-format", "--help"}

var completionTemplates = map[string]*template.Template{
	"bash": template.Must(template.New("bash").Parse(`# bash completion for {{.Prog}}
_{{.Ident}}_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    case "${prev}" in
        --config|--csv|--out)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        --log-level)
            COMPREPLY=( $(compgen -W "debug info warn error" -- ${cur}) )
            return 0
            ;;
        --log-format)
            COMPREPLY=( $(compgen -W "json text" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "{{.Shells}}" -- ${cur}) )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "{{.Names}} {{.Flags}}" -- ${cur}) )
    return 0
}

complete -F _{{.Ident}}_completion {{.Prog}}
`)),
	"zsh": template.Must(template.New("zsh").Parse(`#compdef {{.Prog}}

_{{.Ident}}() {
    local -a commands
    commands=(
{{- range .Commands}}
        '{{.Name}}:{{.Summary}}'
{{- end}}
    )
    _arguments \
        '--config[Configuration file path]:file:_files' \
        '--log-level[Log level]:level:(debug info warn error)' \
        '--log-format[Log format]:format:(json text)' \
        '1: :->command' \
        '*::arg:->args'
    case $state in
        command) _describe 'command' commands ;;
    esac
}

_{{.Ident}} "$@"
`)),
	"fish": template.Must(template.New("fish").Parse(`# fish completion for {{.Prog}}
{{- range .Commands}}
complete -c {{$.Prog}} -f -n "__fish_use_subcommand" -a "{{.Name}}" -d "{{.Summary}}"
{{- end}}
complete -c {{.Prog}} -f -n "__fish_seen_subcommand_from completion" -a "{{.Shells}}"
complete -c {{.Prog}} -l config -r -d "Configuration file path"
complete -c {{.Prog}} -l log-level -x -a "debug info warn error" -d "Log level"
complete -c {{.Prog}} -l log-format -x -a "json text" -d "Log format"
`)),
}

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell, prog string, commands []Command) error {
	tmpl, ok := completionTemplates[shell]
	if !ok {
		return fmt.Errorf("unsupported shell: %s (supported: %s)", shell, strings.Join(Shells, ", "))
	}
	names := make([]string, 0, len(commands))
	quoted := make([]Command, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
		quoted = append(quoted, Command{Name: c.Name, Summary: strings.ReplaceAll(c.Summary, "'", "")})
	}
	return tmpl.Execute(w, map[string]any{
		"Prog":     prog,
		"Ident":    strings.ReplaceAll(prog, "-", "_"),
		"Names":    strings.Join(names, " "),
		"Flags":    strings.Join(globalFlags, " "),
		"Shells":   strings.Join(Shells, " "),
		"Commands": quoted,
	})
}

// CompletionPath is where InstallCompletion puts the script for shell.
func CompletionPath(home, shell, prog string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".bash_completion.d", prog), nil
	case "zsh":
		return filepath.Join(home, ".zsh", "completion", "_"+prog), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", prog+".fish"), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s", shell)
	}
}

// InstallCompletion writes the script under the user's home directory and
// returns its path.
func InstallCompletion(shell, prog string, commands []Command) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	path, err := CompletionPath(home, shell, prog)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	if err := GenerateCompletion(f, shell, prog, commands); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
