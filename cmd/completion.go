package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_diarylock() {
    local cur prev words cword
    _init_completion || return

    local commands="put pages lock unlock clear status passwd recover diff strength keyring compact help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        put)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-title -scene" -- "$cur"))
            elif [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "$(_diarylock_diaries)" -- "$cur"))
            else
                _filedir
            fi
            ;;
        pages|lock|recover|diff|passwd)
            COMPREPLY=($(compgen -W "$(_diarylock_diaries)" -- "$cur"))
            ;;
        unlock)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-save" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "$(_diarylock_diaries)" -- "$cur"))
            fi
            ;;
        clear)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-force" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "$(_diarylock_diaries)" -- "$cur"))
            fi
            ;;
        keyring)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "$(_diarylock_diaries)" -- "$cur"))
            fi
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

_diarylock_diaries() {
    diarylock status 2>/dev/null | sed -n 's/^Diary \(.*\): .*$/\1/p'
}

complete -F _diarylock diarylock
`

const zshCompletion = `#compdef diarylock

_diarylock() {
    local -a commands
    commands=(
        'put:Import a file as page content'
        'pages:List the pages of a diary'
        'lock:Encrypt a diary and clear its pages'
        'unlock:Decrypt a diary and restore its pages'
        'clear:Remove the lock record of a diary'
        'status:Show lock status'
        'passwd:Change the password of a locked diary'
        'recover:Finish an interrupted lock'
        'diff:Compare the locked copy with stored content'
        'strength:Score a password'
        'keyring:Manage password in OS keyring'
        'compact:Compact the database to reclaim disk space'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'diarylock commands' commands
            ;;
        args)
            case "${words[2]}" in
                put)
                    _arguments \
                        '-title[Page title]:title' \
                        '-scene[Store file as the page scene]' \
                        '1:diary:_diarylock_diaries' \
                        '2:page' \
                        '3:file:_files'
                    ;;
                pages|lock|recover|diff|passwd|status)
                    _arguments '1:diary:_diarylock_diaries'
                    ;;
                unlock)
                    _arguments \
                        '-save[Save password to OS keyring]' \
                        '1:diary:_diarylock_diaries'
                    ;;
                clear)
                    _arguments \
                        '-force[Clear even if the diary is locked]' \
                        '1:diary:_diarylock_diaries'
                    ;;
                keyring)
                    _arguments \
                        '1:subcommand:(save delete status)' \
                        '2:diary:_diarylock_diaries'
                    ;;
                help)
                    _describe -t commands 'diarylock commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_diarylock_diaries() {
    local -a diaries
    diaries=(${(f)"$(diarylock status 2>/dev/null | sed -n 's/^Diary \(.*\): .*$/\1/p')"})
    _describe -t diaries 'diaries' diaries
}

_diarylock "$@"
`

const fishCompletion = `# diarylock fish completions

set -l commands put pages lock unlock clear status passwd recover diff strength keyring compact help completion

complete -c diarylock -f

function __diarylock_diaries
    diarylock status 2>/dev/null | sed -n 's/^Diary \(.*\): .*$/\1/p'
end

# Commands
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a put -d 'Import a file as page content'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a pages -d 'List diary pages'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a lock -d 'Encrypt a diary'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a unlock -d 'Decrypt a diary'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a clear -d 'Remove lock record'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show lock status'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change diary password'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a recover -d 'Finish an interrupted lock'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare locked copy with storage'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a strength -d 'Score a password'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact database'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c diarylock -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# Diary arguments
complete -c diarylock -n "__fish_seen_subcommand_from pages lock unlock clear status passwd recover diff" -a "(__diarylock_diaries)"

# Flags
complete -c diarylock -n "__fish_seen_subcommand_from put" -o title -d 'Page title'
complete -c diarylock -n "__fish_seen_subcommand_from put" -o scene -d 'Store file as the page scene'
complete -c diarylock -n "__fish_seen_subcommand_from put" -F
complete -c diarylock -n "__fish_seen_subcommand_from unlock" -o save -d 'Save password to OS keyring'
complete -c diarylock -n "__fish_seen_subcommand_from clear" -o force -d 'Clear even if locked'

# keyring subcommands
complete -c diarylock -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c diarylock -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c diarylock -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
