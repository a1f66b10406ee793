package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pixelgate/pixelgate/internal/adapter/nats"
	"github.com/pixelgate/pixelgate/internal/adapter/ristretto"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/port/eventlog"
	"github.com/pixelgate/pixelgate/internal/port/messagequeue"
	"github.com/pixelgate/pixelgate/internal/service"
)

// runAdmin dispatches admin subcommands (upsert-tenant, link-credential, set-credential, list-events, tail).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "upsert-tenant":
		return runAdminUpsertTenant(args[1:])
	case "link-credential":
		return runAdminLink(args[1:])
	case "set-credential":
		return runAdminSetCredential(args[1:])
	case "list-events":
		return runAdminListEvents(args[1:])
	case "tail":
		return runAdminTail(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: pixelgate admin <command> [options]

Commands:
  upsert-tenant    Create or update a tenant configuration
  link-credential  Link a credential set to a tenant
  set-credential   Create or rotate a credential set
  list-events      Show recent dispatch log records
  tail             Follow dispatch outcomes from the message queue
  help             Show this help message

Examples:
  pixelgate admin upsert-tenant --domain shop.example.com
  pixelgate admin set-credential --account acct-1 --token "$TOKEN" --name "Main account"
  pixelgate admin link-credential --domain shop.example.com --account acct-1
  pixelgate admin list-events --tenant shop.example.com --limit 20
  pixelgate admin tail
`)
}

func loadAdminDeps() (*service.TenantService, eventlog.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	cfgStore, logStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		closeStore()
		return nil, nil, nil, fmt.Errorf("cache: %w", err)
	}

	tenants := service.NewTenantService(cfgStore, cache, cfg.Cache.TTL)
	return tenants, logStore, closeStore, nil
}

func runAdminUpsertTenant(args []string) error {
	fs := flag.NewFlagSet("upsert-tenant", flag.ContinueOnError)
	domain := fs.String("domain", "", "storefront domain (required)")
	account := fs.String("account", "", "credential set to link (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *domain == "" {
		return fmt.Errorf("--domain is required")
	}

	tenants, _, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := tenants.UpsertTenant(context.Background(), *domain, *account)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s saved (enabled=%t, credential=%s)\n",
		cfg.Domain, cfg.GatewayEnabled, cfg.CredentialSetID)
	return nil
}

func runAdminLink(args []string) error {
	fs := flag.NewFlagSet("link-credential", flag.ContinueOnError)
	domain := fs.String("domain", "", "storefront domain (required)")
	account := fs.String("account", "", "credential set account ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *domain == "" {
		return fmt.Errorf("--domain is required")
	}
	if *account == "" {
		return fmt.Errorf("--account is required")
	}

	tenants, _, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, pending, err := tenants.LinkCredential(context.Background(), *domain, *account)
	if err != nil {
		return fmt.Errorf("link credential: %w", err)
	}

	if pending {
		fmt.Fprintf(os.Stderr, "Tenant %s linked to %s; gateway pending until the credential has a token\n",
			cfg.Domain, *account)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Tenant %s linked to %s, gateway enabled\n", cfg.Domain, *account)
	return nil
}

func runAdminSetCredential(args []string) error {
	fs := flag.NewFlagSet("set-credential", flag.ContinueOnError)
	account := fs.String("account", "", "account ID (required)")
	token := fs.String("token", "", "access token (may be added later)") //nolint:gosec // CLI flag
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("--account is required")
	}

	tenants, _, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	cs, err := tenants.FindOrCreateCredential(context.Background(), *account, *token, *name)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}

	state := "pending (no token)"
	if cs.Activated() {
		state = "activated"
	}
	fmt.Fprintf(os.Stderr, "Credential %s saved, %s\n", cs.AccountID, state)
	return nil
}

func runAdminListEvents(args []string) error {
	fs := flag.NewFlagSet("list-events", flag.ContinueOnError)
	tenantKey := fs.String("tenant", "", "filter by tenant domain")
	limit := fs.Int("limit", 50, "maximum records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, logStore, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	records, err := listRecords(ctx, logStore, *tenantKey, *limit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tTENANT\tEVENT\tSTATUS\tDETAIL")
	for i := range records {
		detail := records[i].ResponseSummary
		if records[i].ErrorDetail != "" {
			detail = records[i].ErrorDetail
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			records[i].CreatedAt.Format(time.RFC3339),
			records[i].TenantKey,
			records[i].StandardName,
			records[i].Status,
			detail,
		)
	}
	return w.Flush()
}

// runAdminTail follows dispatch outcomes published on the message queue.
func runAdminTail(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	tenantKey := fs.String("tenant", "", "filter by tenant domain")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats url is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer queue.Close()

	unsubscribe, err := queue.Subscribe(ctx, messagequeue.SubjectEventDispatched, func(_ string, data []byte) error {
		var rec event.LogRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if *tenantKey != "" && rec.TenantKey != *tenantKey {
			return nil
		}
		detail := rec.ResponseSummary
		if rec.ErrorDetail != "" {
			detail = rec.ErrorDetail
		}
		fmt.Printf("%s  %s  %s  %s  %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.TenantKey, rec.StandardName, rec.Status, detail)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer unsubscribe()

	fmt.Fprintln(os.Stderr, "Tailing dispatch outcomes, Ctrl-C to stop.")
	<-ctx.Done()
	return nil
}

func listRecords(ctx context.Context, store eventlog.Store, tenantKey string, limit int) ([]event.LogRecord, error) {
	if tenantKey != "" {
		return store.ListByTenant(ctx, tenantKey, limit)
	}
	return store.ListRecent(ctx, limit)
}
