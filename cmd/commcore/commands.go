// ABOUTME: Subcommand implementations for the commcore command line
// ABOUTME: Each command opens the stores, builds a core module, and awaits its promises on a local loop

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/comm-core/internal/account"
	"github.com/2389/comm-core/internal/bridge"
	"github.com/2389/comm-core/internal/config"
	"github.com/2389/comm-core/internal/core"
	"github.com/2389/comm-core/internal/securestore"
	"github.com/2389/comm-core/internal/store"
)

// app is one command's view of the module and its collaborators.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	loop   *bridge.Loop
	module *core.Module
}

func openApp() (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	loop := bridge.NewLoop()
	module, err := core.New(core.Deps{
		Store:       st,
		SecureStore: securestore.NewFileStore(cfg.SecureStore.Path),
		Invoker:     loop,
		Logger:      logger,
	}, core.Options{
		Synchronous: cfg.Workers.Synchronous,
		Account: account.Options{
			SecretKeyName: cfg.SecureStore.AccountKey,
			SecretLength:  cfg.Crypto.SecretLength,
			OneTimeKeys:   cfg.Crypto.OneTimeKeys,
		},
		NetworkPort: cfg.Network.Port,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating core module: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: st, loop: loop, module: module}, nil
}

// Close stops the module before the database it writes to.
func (a *app) Close() {
	if err := a.module.Close(); err != nil {
		a.logger.Warn("closing core module", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

// withApp opens the app, runs fn and closes it again.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// await pumps the app loop until p settles and prefixes failures with their category.
func await[T any](ctx context.Context, a *app, p *bridge.Promise[T]) (T, error) {
	v, err := bridge.Await(ctx, a.loop, p)
	if err != nil {
		if kind := core.Classify(err); kind != core.KindUnknown {
			return v, fmt.Errorf("%s: %w", kind, err)
		}
	}
	return v, err
}

func runAccount(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: commcore account <user>")
	}
	return withApp(func(a *app) error {
		if _, err := await(ctx, a, a.module.InitializeCryptoAccount(args[0])); err != nil {
			return err
		}
		keys, err := await(ctx, a, a.module.GetUserPublicKey())
		if err != nil {
			return err
		}
		fmt.Println(keys)
		return nil
	})
}

func runKeys(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: commcore keys <user>")
	}
	return withApp(func(a *app) error {
		if _, err := await(ctx, a, a.module.InitializeCryptoAccount(args[0])); err != nil {
			return err
		}
		identity, err := await(ctx, a, a.module.GetUserPublicKey())
		if err != nil {
			return err
		}
		oneTime, err := await(ctx, a, a.module.GetUserOneTimeKeys())
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan)
		cyan.Println("identity keys")
		fmt.Println(identity)
		cyan.Println("one-time keys")
		fmt.Println(oneTime)
		return nil
	})
}

func runDraft(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: commcore draft get|set|move|list|clear")
	}
	sub, rest := args[0], args[1:]

	return withApp(func(a *app) error {
		switch sub {
		case "get":
			if len(rest) != 1 {
				return errors.New("usage: commcore draft get <key>")
			}
			text, err := await(ctx, a, a.module.GetDraft(rest[0]))
			if err != nil {
				return err
			}
			fmt.Println(text)

		case "set":
			if len(rest) != 2 {
				return errors.New("usage: commcore draft set <key> <text>")
			}
			if _, err := await(ctx, a, a.module.UpdateDraft(rest[0], rest[1])); err != nil {
				return err
			}

		case "move":
			if len(rest) != 2 {
				return errors.New("usage: commcore draft move <old> <new>")
			}
			moved, err := await(ctx, a, a.module.MoveDraft(rest[0], rest[1]))
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("no draft for %q", rest[0])
			}

		case "list":
			drafts, err := await(ctx, a, a.module.GetAllDrafts())
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				fmt.Println("  (no drafts)")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTEXT")
			for _, d := range drafts {
				fmt.Fprintf(w, "%s\t%s\n", d.Key, d.Text)
			}
			w.Flush()

		case "clear":
			if _, err := await(ctx, a, a.module.RemoveAllDrafts()); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown draft command: %s", sub)
		}
		return nil
	})
}

func runMessages(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: commcore messages list|clear")
	}

	return withApp(func(a *app) error {
		switch args[0] {
		case "list":
			messages, err := await(ctx, a, a.module.GetAllMessages())
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Println("  (no messages)")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTHREAD\tUSER\tTYPE\tTIME\tCONTENT")
			for _, m := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Thread, m.User, formatType(m),
					time.UnixMilli(m.Time).Format("Jan 02 15:04"), m.Content.V)
			}
			w.Flush()

		case "clear":
			if _, err := await(ctx, a, a.module.RemoveAllMessages()); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown messages command: %s", args[0])
		}
		return nil
	})
}

func formatType(m store.Message) string {
	s := strconv.FormatInt(m.Type, 10)
	if m.FutureType.Valid {
		s += "/" + strconv.FormatInt(m.FutureType.V, 10)
	}
	return s
}

func runApply(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: commcore apply <file|->")
	}

	var payload []byte
	var err error
	if args[0] == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading operations: %w", err)
	}

	return withApp(func(a *app) error {
		if _, err := await(ctx, a, a.module.ProcessMessageStoreOperations(payload)); err != nil {
			return err
		}
		fmt.Println("applied")
		return nil
	})
}

func runConnect(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: commcore connect <user> <device-token>")
	}

	return withApp(func(a *app) error {
		if _, err := await(ctx, a, a.module.InitializeNetworkModule(args[0], args[1], a.cfg.Network.Hostname)); err != nil {
			return err
		}

		checkCtx := ctx
		if a.cfg.Network.DialTimeout > 0 {
			var cancel context.CancelFunc
			checkCtx, cancel = context.WithTimeout(ctx, a.cfg.Network.DialTimeout)
			defer cancel()
		}
		if _, err := await(ctx, a, a.module.CheckNetworkHealth(checkCtx)); err != nil {
			return err
		}

		color.New(color.FgGreen).Printf("    ▶ ")
		fmt.Printf("relay at %s is serving\n", a.cfg.Network.Hostname)
		return nil
	})
}
