package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/spf13/pflag"
)

func runProvision(args []string) error {
	fs := pflag.NewFlagSet("provision", pflag.ExitOnError)
	server, token := connectionFlags(fs)
	name := fs.String("name", "", "Runner name (generated when empty)")
	prefix := fs.String("name-prefix", "", "Prefix for a generated name")
	labels := fs.StringSlice("labels", nil, "Comma-separated runner labels")
	ephemeral := fs.Bool("ephemeral", false, "Runner takes a single job")
	mode := fs.String("mode", "", "Issuance mode: registration_token or jit")
	team := fs.String("team", "", "Team ID to provision under")
	group := fs.Int64("runner-group", 0, "Runner group ID")
	disableUpdate := fs.Bool("disable-update", false, "Disable runner self-update")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	var resp dto.ProvisionRunnerResponse
	err = c.do(context.Background(), http.MethodPost, "/api/v1/runners", nil, dto.ProvisionRunnerRequest{
		Name:          *name,
		NamePrefix:    *prefix,
		Labels:        *labels,
		Ephemeral:     *ephemeral,
		Mode:          *mode,
		TeamID:        *team,
		RunnerGroupID: *group,
		DisableUpdate: *disableUpdate,
	}, &resp)
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	fmt.Println("Provisioning successful!")
	fmt.Printf("  Runner ID:  %s\n", resp.ID)
	fmt.Printf("  Name:       %s\n", resp.Name)
	fmt.Printf("  Labels:     %s\n", strings.Join(resp.Labels, ","))
	fmt.Printf("  Mode:       %s\n", resp.Mode)
	fmt.Printf("  Expires at: %s\n", resp.CredentialExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Println()
	fmt.Println("Run the following on the runner host:")
	fmt.Println()
	fmt.Println(resp.ConfigurationCommand)

	return nil
}

func runList(args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	server, token := connectionFlags(fs)
	status := fs.String("status", "", "Filter by status")
	includeDeleted := fs.Bool("include-deleted", false, "Include deleted runners")
	limit := fs.Int("limit", 0, "Maximum number of runners")
	offset := fs.Int("offset", 0, "Offset into the result")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	q := url.Values{}
	setIf(q, "status", *status)
	if *includeDeleted {
		q.Set("include_deleted", "true")
	}
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}
	if *offset > 0 {
		q.Set("offset", strconv.Itoa(*offset))
	}

	var resp dto.ListRunnersResponse
	if err := c.do(context.Background(), http.MethodGet, "/api/v1/runners", q, nil, &resp); err != nil {
		return fmt.Errorf("listing failed: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tOWNER\tTEAM\tLABELS")
	for _, r := range resp.Runners {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status, r.Owner, r.TeamID, strings.Join(r.Labels, ","))
	}
	return w.Flush()
}

func runGet(args []string) error {
	fs := pflag.NewFlagSet("get", pflag.ExitOnError)
	server, token := connectionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: silo-runners get <runner-id>")
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	var r dto.RunnerResponse
	if err := c.do(context.Background(), http.MethodGet, "/api/v1/runners/"+url.PathEscape(fs.Arg(0)), nil, nil, &r); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", r.ID)
	fmt.Printf("Name:        %s\n", r.Name)
	fmt.Printf("Status:      %s\n", r.Status)
	fmt.Printf("Owner:       %s\n", r.Owner)
	fmt.Printf("Team:        %s\n", r.TeamID)
	fmt.Printf("Labels:      %s\n", strings.Join(r.Labels, ","))
	fmt.Printf("Mode:        %s\n", r.Mode)
	fmt.Printf("Ephemeral:   %t\n", r.Ephemeral)
	if r.PlatformAgentID != nil {
		fmt.Printf("Platform ID: %d\n", *r.PlatformAgentID)
	}
	return nil
}

func runDeprovision(args []string) error {
	fs := pflag.NewFlagSet("deprovision", pflag.ExitOnError)
	server, token := connectionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: silo-runners deprovision <runner-id>...")
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	var failed int
	for _, id := range fs.Args() {
		if err := c.do(context.Background(), http.MethodDelete, "/api/v1/runners/"+url.PathEscape(id), nil, nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("%s: deprovisioned\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runners could not be deprovisioned", failed, fs.NArg())
	}
	return nil
}

func runSync(args []string) error {
	fs := pflag.NewFlagSet("sync", pflag.ExitOnError)
	server, token := connectionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	var res dto.SyncResultResponse
	if err := c.do(context.Background(), http.MethodPost, "/api/v1/admin/sync/trigger", nil, nil, &res); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Updated: %d  Deleted: %d  Unchanged: %d  Remediated: %d  Skipped: %d  Errors: %d  (%dms)\n",
		res.Updated, res.Deleted, res.Unchanged, res.Remediated, res.Skipped, res.Errors, res.DurationMs)
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
