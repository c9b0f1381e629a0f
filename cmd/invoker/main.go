// Package main is the entrypoint for provider-invoker (binary name "invoker").
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/morezero/provider-invoker/internal/config"
	"github.com/morezero/provider-invoker/internal/server"
	"github.com/morezero/provider-invoker/pkg/bootstrap"
	"github.com/morezero/provider-invoker/pkg/commsutil"
	"github.com/morezero/provider-invoker/pkg/db"
	"github.com/morezero/provider-invoker/pkg/invoker"
	"github.com/morezero/provider-invoker/pkg/registry"
	"github.com/morezero/provider-invoker/pkg/semver"
)

const usage = `Usage: invoker [command]
       invoker services                                   List services registered under ZK_ROOT.
       invoker resolve <service>[@range]                  Print the endpoint of the selected provider.
       invoker providers <service>                        Print every decoded provider entry.
       invoker invoke <service> <method> [args] [kind]    Resolve the service and invoke one method.
       invoker call <host:port> <service> <method> [args] [kind]
                                                          Invoke a provider directly, skipping the registry.
       invoker serve                                      Start the gateway (NATS, HTTP health).
       invoker migrate up|status                          Create or inspect the invocation history schema.
       invoker ensure-db                                  Create the DATABASE_URL database if missing.
       invoker history [limit] [service]                  Show recent invocations.
       invoker history show <id>                          Show one invocation with its command.
       invoker history clear [older-than]                 Delete history (e.g. "history clear 720h").

Arguments:
  args   JSON array of positional arguments (default []) or, with kind "object",
         a JSON object whose "class" key names the target type.
  kind   positional (default) or object.

Environment: ZK_ADDRESSES (required for services/resolve/invoke/serve), ZK_ROOT,
PROVIDER_SCHEME, PROVIDER_VERSION, BOOTSTRAP_FILE, SESSION_*, COMMS_URL, GATEWAY_SUBJECT,
DATABASE_URL (history; empty disables it), MIGRATION_PATH, HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	var err error
	switch cmd {
	case "services":
		err = runServices(os.Stdout)
	case "resolve":
		if len(args) < 2 {
			log.Fatalf("invoker resolve: require <service>")
		}
		err = runResolve(os.Stdout, args[1])
	case "providers":
		if len(args) < 2 {
			log.Fatalf("invoker providers: require <service>")
		}
		err = runProviders(os.Stdout, args[1])
	case "invoke":
		err = runInvoke(os.Stdout, args[1:])
	case "call":
		err = runCall(os.Stdout, args[1:])
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("invoker migrate: require subcommand (up, status)")
		}
		err = runMigrate(os.Stdout, args[1])
	case "ensure-db":
		err = runEnsureDB(os.Stdout)
	case "history":
		err = runHistory(os.Stdout, args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		err = server.Run()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Printf("invoker %s: %v", cmd, err)
		os.Exit(exitCode(err))
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.ConfigureLogging(cfg.LogLevel)
	return cfg, nil
}

// openResolver connects to the registry and layers the bootstrap file's
// static providers on top.
func openResolver(cfg *config.Config) (*bootstrap.Overlay, func(), error) {
	if err := cfg.ValidateForResolve(); err != nil {
		return nil, nil, err
	}
	params, err := cfg.ResolverParams()
	if err != nil {
		return nil, nil, err
	}
	static, err := cfg.StaticProviders()
	if err != nil {
		return nil, nil, err
	}
	resolver, err := registry.NewResolver(params)
	if err != nil {
		return nil, nil, err
	}
	return bootstrap.NewOverlay(static, resolver), resolver.Close, nil
}

func runServices(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, closeResolver, err := openResolver(cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	services, err := resolver.ListServices()
	if err != nil {
		return err
	}
	for _, s := range services {
		fmt.Fprintln(w, s)
	}
	return nil
}

// runResolve accepts "service" or "service@range"; a range overrides PROVIDER_VERSION.
func runResolve(w io.Writer, ref string) error {
	parsed, err := semver.ParseServiceRef(ref)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if parsed.Range != "" {
		cfg.ProviderVersion = parsed.Range
	}
	resolver, closeResolver, err := openResolver(cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	ep, err := resolver.ResolveEndpoint(parsed.Service)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ep.Address())
	return nil
}

func runProviders(w io.Writer, service string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, closeResolver, err := openResolver(cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	providers, err := resolver.Providers(service)
	if err != nil {
		return err
	}
	return printProviders(w, providers, cfg.ProviderVersion)
}

// printProviders lists providers; with a version range a MATCH column shows
// which entries a VersionSelector would accept.
func printProviders(w io.Writer, providers []*registry.ProviderURL, versionRange string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "ADDRESS\tVERSION\tINTERFACE\tMETHODS"
	if versionRange != "" {
		header += "\tMATCH " + versionRange
	}
	fmt.Fprintln(tw, header)
	for _, p := range providers {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", p.Endpoint().Address(), p.Version(), p.Interface, p.Params.Get("methods"))
		if versionRange != "" {
			line += fmt.Sprintf("\t%t", semver.SatisfiesRange(p.Version(), versionRange))
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func runInvoke(w io.Writer, args []string) error {
	req, err := parseInvokeArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, closeResolver, err := openResolver(cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	client, closeClient, err := newCLIClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	result, err := client.InvokeService(context.Background(), resolver, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, result)
	return nil
}

func runCall(w io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("require <host:port> <service> <method>")
	}
	endpoint, err := parseEndpoint(args[0])
	if err != nil {
		return err
	}
	req, err := parseInvokeArgs(args[1:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := newCLIClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	result, err := client.Invoke(context.Background(), endpoint, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, result)
	return nil
}

// newCLIClient builds an invocation client that records history when
// DATABASE_URL is set. The CLI does not publish events.
func newCLIClient(cfg *config.Config) (*invoker.Client, func(), error) {
	if err := cfg.ValidateForInvoke(); err != nil {
		return nil, nil, err
	}
	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, nil, err
	}
	params := invoker.ClientParams{SessionOptions: opts}
	closeFn := func() {}
	if cfg.HistoryEnabled() {
		pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		params.Recorder = db.NewRepository(pool)
		closeFn = pool.Close
	}
	return invoker.NewClient(params), closeFn, nil
}

// parseInvokeArgs turns "<service> <method> [args] [kind]" into a request.
func parseInvokeArgs(args []string) (invoker.Request, error) {
	if len(args) < 2 {
		return invoker.Request{}, fmt.Errorf("require <service> <method>")
	}
	req := invoker.Request{Service: args[0], Method: args[1], Args: []any{}}

	if len(args) > 3 {
		kind, err := invoker.ParseArgKind(args[3])
		if err != nil {
			return req, err
		}
		req.Kind = kind
	}
	if len(args) > 2 && strings.TrimSpace(args[2]) != "" {
		var err error
		if req.Kind == invoker.Object {
			var obj map[string]any
			err = commsutil.DecodePayload([]byte(args[2]), &obj)
			req.Args = obj
		} else {
			var list []any
			err = commsutil.DecodePayload([]byte(args[2]), &list)
			req.Args = list
		}
		if err != nil {
			return req, fmt.Errorf("%w: %s args: %v", invoker.ErrInvalidArguments, req.Kind, err)
		}
	} else if req.Kind == invoker.Object {
		return req, fmt.Errorf("%w: object argument is required", invoker.ErrInvalidArguments)
	}
	if _, err := invoker.FormatCommand(req.Service, req.Method, req.Kind, req.Args); err != nil {
		return req, err
	}
	return req, nil
}

func parseEndpoint(s string) (registry.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return registry.Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return registry.Endpoint{}, fmt.Errorf("invalid port in %q", s)
	}
	if host == "" {
		return registry.Endpoint{}, fmt.Errorf("missing host in %q", s)
	}
	return registry.Endpoint{Host: host, Port: port}, nil
}

func openDB(cfg *config.Config) (*db.Repository, func(), error) {
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return db.NewRepository(pool), pool.Close, nil
}

func runMigrate(w io.Writer, sub string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	switch sub {
	case "up":
		migrations, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		fmt.Fprintf(w, "Applied %d migrations.\n", len(migrations))
	case "status":
		applied, err := db.MigrationStatus(ctx, pool)
		if err != nil {
			return err
		}
		if applied {
			fmt.Fprintln(w, "Migration status: applied (invocations table present)")
		} else {
			fmt.Fprintln(w, "Migration status: not applied (run 'invoker migrate up')")
		}
	default:
		return fmt.Errorf("unknown subcommand %q (use up, status)", sub)
	}
	return nil
}

func runEnsureDB(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), cfg.DatabaseURL); err != nil {
		return err
	}
	fmt.Fprintln(w, "Database is ready.")
	return nil
}

type historyArgs struct {
	clear     bool
	showID    string
	olderThan time.Duration
	params    db.ListInvocationsParams
}

func parseHistoryArgs(args []string) (historyArgs, error) {
	var out historyArgs
	if len(args) > 0 && args[0] == "show" {
		if len(args) < 2 || args[1] == "" {
			return out, fmt.Errorf("require <id>")
		}
		out.showID = args[1]
		return out, nil
	}
	if len(args) > 0 && args[0] == "clear" {
		out.clear = true
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil || d < 0 {
				return out, fmt.Errorf("invalid age %q", args[1])
			}
			out.olderThan = d
		}
		return out, nil
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return out, fmt.Errorf("invalid limit %q", args[0])
		}
		out.params.Limit = n
	}
	if len(args) > 1 {
		out.params.Service = args[1]
	}
	return out, nil
}

func runHistory(w io.Writer, args []string) error {
	hargs, err := parseHistoryArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if hargs.clear {
		if err := cfg.ValidateForDB(); err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		n, err := db.ClearHistory(ctx, pool, hargs.olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted %d invocations.\n", n)
		return nil
	}

	repo, closeDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if hargs.showID != "" {
		inv, err := repo.GetInvocation(context.Background(), hargs.showID)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("invocation %s not found", hargs.showID)
		}
		return printInvocation(w, inv)
	}

	rows, err := repo.ListInvocations(context.Background(), hargs.params)
	if err != nil {
		return err
	}
	return printHistory(w, rows)
}

func printHistory(w io.Writer, rows []db.Invocation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSERVICE\tMETHOD\tENDPOINT\tOK\tMS\tRESULT")
	for _, r := range rows {
		result := r.Result
		if r.Error != nil {
			result = *r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
			r.Created.Format(time.RFC3339), r.Service, r.Method, r.Endpoint, r.Ok, r.DurationMs, truncate(result, 80))
	}
	return tw.Flush()
}

func printInvocation(w io.Writer, inv *db.Invocation) error {
	errText := ""
	if inv.Error != nil {
		errText = *inv.Error
	}
	_, err := fmt.Fprintf(w, "id:       %s\ncreated:  %s\nendpoint: %s\ncommand:  %s\nok:       %t (%d ms)\nresult:   %s\nerror:    %s\n",
		inv.ID, inv.Created.Format(time.RFC3339), inv.Endpoint, inv.Command, inv.Ok, inv.DurationMs, inv.Result, errText)
	return err
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// exitCode maps well-known failures to distinct exit statuses for scripts.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, registry.ErrNotFound):
		return 3
	case errors.Is(err, invoker.ErrInvalidArguments):
		return 2
	default:
		return 1
	}
}
