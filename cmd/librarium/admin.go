package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/catalog"
	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	"github.com/nerrad567/librarium-core/internal/infrastructure/logging"
)

// auditSourceCLI marks audit entries written by administrative commands.
const auditSourceCLI = "cli"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordsDiffer = errors.New("passwords do not match")

// adminEnv is the opened store and auth core shared by administrative
// commands. Logs go to stderr so stdout carries only command output.
type adminEnv struct {
	cfg      *config.Config
	log      *logging.Logger
	db       *database.DB
	hasher   *auth.Hasher
	tokens   *auth.TokenService
	accounts *auth.SQLAccountRepository
}

func openAdminEnv(cmd *cobra.Command, load configLoader) (*adminEnv, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)

	db, err := openDatabase(cmd.Context(), cfg, log)
	if err != nil {
		return nil, err
	}
	hasher, tokens, err := newAuthCore(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &adminEnv{
		cfg:      cfg,
		log:      log,
		db:       db,
		hasher:   hasher,
		tokens:   tokens,
		accounts: auth.NewSQLAccountRepository(db),
	}, nil
}

func (e *adminEnv) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Error("error closing database", "error", err)
	}
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openAdminEnv(cmd, load)
			if err != nil {
				return err
			}
			defer env.Close()

			v, err := env.db.MigrationVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading migration version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database schema at version %d\n", v)
			return nil
		},
	}
}

func newSeedCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create first-boot accounts and sample books",
		Long: `Creates a "staff" and a "patron" account when no accounts exist, and a
handful of sample books when the catalogue is empty. Generated passwords are
printed once to stdout and are not stored anywhere else.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openAdminEnv(cmd, load)
			if err != nil {
				return err
			}
			defer env.Close()

			seeded, err := auth.SeedAccounts(cmd.Context(), env.accounts, env.hasher, env.log.Logger)
			if err != nil {
				return fmt.Errorf("seeding accounts: %w", err)
			}
			n, err := catalog.SeedBooks(cmd.Context(), catalog.NewSQLRepository(env.db), env.log.Logger)
			if err != nil {
				return fmt.Errorf("seeding books: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(seeded) == 0 {
				fmt.Fprintln(out, "accounts already exist, none created")
			}
			printSeeded(out, seeded)
			fmt.Fprintf(out, "%d books added\n", n)
			return nil
		},
	}
}

// printSeeded shows generated first-boot credentials. It is the only place
// these passwords ever appear.
func printSeeded(w io.Writer, seeded []auth.SeededAccount) {
	if len(seeded) == 0 {
		return
	}
	fmt.Fprintln(w, "Initial accounts created. Passwords are shown once; change them after first login:")
	for _, a := range seeded {
		fmt.Fprintf(w, "  %-7s %-10s %s\n", a.Role, a.Username, a.Password)
	}
}

// ─── user ──────────────────────────────────────────────────────────

func newUserCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCmd(load), newUserListCmd(load))
	return cmd
}

func newUserCreateCmd(load configLoader) *cobra.Command {
	var (
		username      string
		email         string
		role          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Creates an account with the given role. The password is prompted for
without echo, or read from the first line of stdin with --password-stdin.`,
		Example: `  librarium user create --username desk --email desk@library.org --role staff`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}

			password, err := promptPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}

			env, err := openAdminEnv(cmd, load)
			if err != nil {
				return err
			}
			defer env.Close()

			account, err := auth.Register(cmd.Context(), env.accounts, env.hasher, auth.RegisterInput{
				Username: username,
				Email:    email,
				Password: password,
				Role:     r,
			})
			if err != nil {
				return fmt.Errorf("creating account: %w", err)
			}

			if err := audit.NewSQLRepository(env.db).Create(cmd.Context(), &audit.AuditLog{
				Action:     audit.ActionCreate,
				EntityType: audit.EntityAccount,
				EntityID:   account.ID,
				Source:     auditSourceCLI,
				Details:    map[string]any{"username": account.Username, "role": account.Role},
			}); err != nil {
				env.log.Warn("failed to write audit entry", "error", err)
			}

			env.log.Info("account created", "account_id", account.ID, "role", account.Role, "source", auditSourceCLI)
			fmt.Fprintf(cmd.OutOrStdout(), "created %s account %q (%s)\n", account.Role, account.Username, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RolePatron), "account role: staff or patron")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// promptPassword reads a password from stdin or, interactively, twice from
// the terminal without echo.
func promptPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	prompt := cmd.ErrOrStderr()
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int on supported platforms

	fmt.Fprint(prompt, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(prompt, "Confirm password: ")
	confirm, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(pw) != string(confirm) {
		return "", errPasswordsDiffer
	}
	return string(pw), nil
}

func newUserListCmd(load configLoader) *cobra.Command {
	var (
		role  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := auth.ListOptions{Limit: limit}
			if role != "" {
				r, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				opts.Role = r
			}

			env, err := openAdminEnv(cmd, load)
			if err != nil {
				return err
			}
			defer env.Close()

			accounts, err := env.accounts.List(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("listing accounts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "no accounts found")
				return nil
			}
			renderAccounts(out, accounts)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "only list accounts with this role")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of accounts (max 200)")
	return cmd
}

func renderAccounts(w io.Writer, accounts []auth.Account) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Username", "Email", "Role", "Active", "Created"})

	for _, a := range accounts {
		username := a.Username
		if a.Role == auth.RoleStaff {
			username = bold(username)
		}
		active := "yes"
		if !a.IsActive {
			active = faint("no")
		}
		t.AppendRow(table.Row{
			a.ID,
			username,
			a.Email,
			a.Role,
			active,
			a.CreatedAt.Format(time.DateOnly),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(accounts)})

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	s.Format.Footer = text.FormatDefault
	t.SetStyle(s)
	t.Render()
}

// ─── token ─────────────────────────────────────────────────────────

func newTokenCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Session token utilities",
	}
	cmd.AddCommand(newTokenIssueCmd(load))
	return cmd
}

func newTokenIssueCmd(load configLoader) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session token for an existing account",
		Long: `Issues a bearer token for an active account without a password check.
Intended for diagnostics; the token is printed to stdout and nowhere else.`,
		Example: `  TOKEN=$(librarium token issue --username staff)`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openAdminEnv(cmd, load)
			if err != nil {
				return err
			}
			defer env.Close()

			account, err := env.accounts.GetByUsername(cmd.Context(), username)
			if err != nil {
				return fmt.Errorf("looking up %q: %w", username, err)
			}

			authn := auth.NewAuthenticator(env.accounts, env.hasher, env.tokens, auth.WithLogger(env.log.Logger))
			result, err := authn.IssueFor(account)
			if err != nil {
				return fmt.Errorf("issuing token for %q: %w", username, err)
			}

			env.log.Info("diagnostic token issued", "account_id", account.ID, "role", account.Role)
			fmt.Fprintf(cmd.ErrOrStderr(), "role %s, expires %s\n",
				account.Role, result.Claims.ExpiresAt.Time.Format(time.RFC3339))
			fmt.Fprintln(cmd.OutOrStdout(), result.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account to issue the token for (required)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
