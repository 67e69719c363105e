package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/diarylock/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flag.StringVar(&cmd.ConfigPath, "config", "", "Path to YAML config file (default $DIARYLOCK_CONFIG)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "put":
		runPut(ctx, args[1:])
	case "pages":
		runPages(ctx, args[1:])
	case "lock":
		runLock(ctx, args[1:])
	case "unlock":
		runUnlock(ctx, args[1:])
	case "clear":
		runClear(ctx, args[1:])
	case "status", "ls":
		runStatus(ctx, args[1:])
	case "passwd":
		runPasswd(ctx, args[1:])
	case "recover":
		runRecover(ctx, args[1:])
	case "diff":
		runDiff(ctx, args[1:])
	case "strength":
		cmd.Strength()
	case "keyring":
		runKeyring(ctx, args[1:])
	case "compact":
		runCompact(ctx, args[1:])
	case "completion":
		runCompletion(ctx, args[1:])
	case "help", "-h", "--help":
		if len(args) < 2 {
			printUsage()
			return
		}
		printCommandHelp(args[1])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// parseDiary parses the flag set and returns the diary id argument
func parseDiary(fs *flag.FlagSet, args []string, usage string) string {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runPut(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	title := fs.String("title", "", "Page title (default: file name)")
	scene := fs.Bool("scene", false, "Store the file as the page scene instead of its document")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() < 3 {
		fmt.Fprintln(os.Stderr, "Usage: diarylock put [-title T] [-scene] <diary> <page> <file>")
		os.Exit(1)
	}

	cmd.Put(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2), *title, *scene)
}

func runPages(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("pages", flag.ExitOnError)
	cmd.Pages(ctx, parseDiary(fs, args, "diarylock pages <diary>"))
}

func runLock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	cmd.Lock(ctx, parseDiary(fs, args, "diarylock lock <diary>"))
}

func runUnlock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	save := fs.Bool("save", false, "Save password to OS keyring after unlocking")
	diaryID := parseDiary(fs, args, "diarylock unlock [-save] <diary>")

	cmd.Unlock(ctx, diaryID, *save)
}

func runClear(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	force := fs.Bool("force", false, "Clear even if the diary is locked")
	diaryID := parseDiary(fs, args, "diarylock clear [-force] <diary>")

	cmd.Clear(ctx, diaryID, *force)
}

func runStatus(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Status(ctx, fs.Arg(0))
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	cmd.Passwd(ctx, parseDiary(fs, args, "diarylock passwd <diary>"))
}

func runRecover(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	cmd.Recover(ctx, parseDiary(fs, args, "diarylock recover <diary>"))
}

func runDiff(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	cmd.Diff(ctx, parseDiary(fs, args, "diarylock diff <diary>"))
}

func runKeyring(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: diarylock keyring <save|delete|status> <diary>")
		os.Exit(1)
	}

	switch args[0] {
	case "save":
		cmd.KeyringSave(ctx, args[1])
	case "delete":
		cmd.KeyringDelete(args[1])
	case "status":
		cmd.KeyringStatus(args[1])
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		os.Exit(1)
	}
}

func runCompact(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Compact(ctx)
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: diarylock completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("diarylock - Password locking for diaries")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  diarylock [-config file] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  put         Import a file as page content")
	fmt.Println("  pages       List the pages of a diary")
	fmt.Println("  lock        Encrypt a diary and clear its pages")
	fmt.Println("  unlock      Decrypt a diary and restore its pages")
	fmt.Println("  clear       Remove the lock record of a diary")
	fmt.Println("  ls, status  Show lock status")
	fmt.Println("  passwd      Change the password of a locked diary")
	fmt.Println("  recover     Finish an interrupted lock")
	fmt.Println("  diff        Compare the locked copy with stored content")
	fmt.Println("  strength    Score a password")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  compact     Compact the database to reclaim disk space")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  diarylock put journal monday monday.json   # Add a page")
	fmt.Println("  diarylock lock journal                     # Lock the diary")
	fmt.Println("  diarylock unlock -save journal             # Unlock and remember password")
	fmt.Println("  diarylock status                           # Check all diaries")
	fmt.Println()
	fmt.Println("Use 'diarylock help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "put":
		fmt.Println("diarylock put [-title T] [-scene] <diary> <page> <file>")
		fmt.Println()
		fmt.Println("Stores the file's bytes as the document of a page, creating the")
		fmt.Println("page if needed. Refused while the diary is locked.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -title T   Page title (default: file name without extension)")
		fmt.Println("  -scene     Store the file as the page scene instead")
	case "pages":
		fmt.Println("diarylock pages <diary>")
		fmt.Println()
		fmt.Println("Lists the pages of a diary. Sanitized pages are marked with '*'.")
	case "lock":
		fmt.Println("diarylock lock <diary>")
		fmt.Println()
		fmt.Println("Encrypts every page of the diary and clears their content.")
		fmt.Println("Prompts for a new password twice, or reads $DIARYLOCK_PASSWORD.")
		fmt.Println("Weak passwords are rejected, see 'diarylock strength'.")
		fmt.Println("The password is not stored anywhere - you must remember it.")
	case "unlock":
		fmt.Println("diarylock unlock [-save] <diary>")
		fmt.Println()
		fmt.Println("Decrypts a locked diary and restores its pages.")
		fmt.Println("Nothing is written unless every page decrypts.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -save   Save the password to the OS keyring")
	case "clear":
		fmt.Println("diarylock clear [-force] <diary>")
		fmt.Println()
		fmt.Println("Deletes the diary's lock record without asking for the password.")
		fmt.Println("Page content is not touched. On a locked diary this discards the")
		fmt.Println("encrypted content, so -force is required.")
	case "ls", "status":
		fmt.Println("diarylock status [<diary>]")
		fmt.Println()
		fmt.Println("Shows lock state, page counts and encryption parameters.")
		fmt.Println("Reports interrupted locks that need 'diarylock recover'.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "passwd":
		fmt.Println("diarylock passwd <diary>")
		fmt.Println()
		fmt.Println("Changes the password of a locked diary.")
		fmt.Println("Re-encrypts the locked content with the new password.")
	case "recover":
		fmt.Println("diarylock recover <diary>")
		fmt.Println()
		fmt.Println("Clears content that an interrupted lock left on pages that are")
		fmt.Println("already captured in the lock. Safe to run repeatedly.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "diff":
		fmt.Println("diarylock diff <diary>")
		fmt.Println()
		fmt.Println("Compares the locked copy of each page with what storage holds now.")
	case "strength":
		fmt.Println("diarylock strength")
		fmt.Println()
		fmt.Println("Scores a password and lists what would make it stronger.")
		fmt.Println("Exits with status 1 if the password is too weak to lock a diary.")
	case "keyring":
		fmt.Println("diarylock keyring <save|delete|status> <diary>")
		fmt.Println()
		fmt.Println("Manages a diary password stored in the OS keyring.")
		fmt.Println("A stored password is used by unlock, diff and passwd.")
	case "compact":
		fmt.Println("diarylock compact")
		fmt.Println()
		fmt.Println("Compacts the bolt database to reclaim unused disk space.")
		fmt.Println("Locking rewrites every page, so the file grows over time.")
	case "completion":
		fmt.Println("diarylock completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(diarylock completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(diarylock completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  diarylock completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
