// ABOUTME: Entry point for the commcore command line
// ABOUTME: Drives the core module against a local database and secret store

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/comm-core/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `

  ___ ___  _ __ ___  _ __ ___   ___ ___  _ __ ___
 / __/ _ \| '_ ' _ \| '_ ' _ \ / __/ _ \| '__/ _ \
| (_| (_) | | | | | | | | | | | (_| (_) | | |  __/
 \___\___/|_| |_| |_|_| |_| |_|\___\___/|_|  \___|
`

// getConfigPath returns the path to the commcore config file.
// Priority: COMMCORE_CONFIG env var > XDG_CONFIG_HOME/commcore/config.yaml > ~/.config/commcore/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COMMCORE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "commcore", "config.yaml")
}

func usage() {
	fmt.Println("Usage: commcore <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                          Write a default config file")
	fmt.Println("  account <user>                Initialize the crypto account and print identity keys")
	fmt.Println("  keys <user>                   Print identity and one-time keys")
	fmt.Println("  draft get <key>               Print a draft")
	fmt.Println("  draft set <key> <text>        Save a draft")
	fmt.Println("  draft move <old> <new>        Move a draft to a new key")
	fmt.Println("  draft list                    List all drafts")
	fmt.Println("  draft clear                   Remove all drafts")
	fmt.Println("  messages list                 List all messages")
	fmt.Println("  messages clear                Remove all messages")
	fmt.Println("  apply <file|->                Apply a JSON message store operation batch")
	fmt.Println("  connect <user> <device-token> Build the relay client and check its health")
	fmt.Println("  version                       Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit()
	case "account":
		err = runAccount(ctx, args)
	case "keys":
		err = runKeys(ctx, args)
	case "draft":
		err = runDraft(ctx, args)
	case "messages":
		err = runMessages(ctx, args)
	case "apply":
		err = runApply(ctx, args)
	case "connect":
		err = runConnect(ctx, args)
	case "version":
		fmt.Printf("commcore %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit() error {
	outputFile := getConfigPath()

	color.New(color.FgCyan).Print(banner)
	fmt.Printf("  %s\n\n", color.HiBlackString("version "+version))

	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(outputFile); err == nil {
		answer := prompt(reader, fmt.Sprintf("%s already exists. Overwrite? (y/N)", outputFile), "n")
		if !strings.EqualFold(answer, "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(config.Sample), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Sample paths reference ${HOME}; loading it back resolves them.
	cfg, err := config.Load(outputFile)
	if err != nil {
		return fmt.Errorf("loading written config: %w", err)
	}
	for _, p := range []string{cfg.Database.Path, cfg.SecureStore.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	green := color.New(color.FgGreen)
	green.Printf("    ▶ ")
	fmt.Printf("Config written to %s\n", outputFile)
	green.Printf("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Printf("    ▶ ")
	fmt.Printf("Secure store: %s\n", cfg.SecureStore.Path)
	fmt.Println("\nTo create an account:")
	fmt.Printf("  commcore account <user>\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
