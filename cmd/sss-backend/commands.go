// File: cmd/sss-backend/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/irfanfaraaz/sss-backend/internal/audit"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/internal/storage"
)

// newEventsCmd prints persisted events without starting the backend
func newEventsCmd() *cobra.Command {
	var filter models.EventFilter

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List indexed events from the persisted store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			persister, err := storage.NewPersister(cmd.Context(), &cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			store := storage.NewEventStore(persister,
				storage.WithCapacity(cfg.Storage.Capacity),
				storage.WithQueryMaxLimit(cfg.Storage.QueryMaxLimit))
			defer store.Close()
			store.Load(cmd.Context())

			return writeIndentedJSON(cmd.OutOrStdout(), map[string]interface{}{
				"events": store.Query(filter),
			})
		},
	}

	cmd.Flags().StringVar(&filter.Mint, "mint", "", "only events of this mint")
	cmd.Flags().IntVar(&filter.Limit, "limit", storage.DefaultQueryLimit, "maximum number of events")
	cmd.Flags().StringVar(&filter.Before, "before", "", "only events stored after this signature")
	return cmd
}

// auditOptions configures the audit command
type auditOptions struct {
	baseURL string
	format  string
	action  string
	output  string
	timeout time.Duration
}

// newAuditCmd fetches the audit log of a running backend
func newAuditCmd() *cobra.Command {
	opts := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Fetch or export the audit log of a running backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.baseURL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				opts.baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
			}

			out := cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return fetchAudit(cmd.Context(), opts, out)
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "url", "", "backend base URL (default http://127.0.0.1:<PORT>)")
	cmd.Flags().StringVar(&opts.format, "format", audit.FormatJSON, "json or csv")
	cmd.Flags().StringVar(&opts.action, "action", "", "only records of this action (json only)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

// fetchAudit reads /audit (json) or /audit/export?format=csv into out
func fetchAudit(ctx context.Context, opts *auditOptions, out io.Writer) error {
	base := strings.TrimRight(opts.baseURL, "/")

	var target string
	switch strings.ToLower(opts.format) {
	case audit.FormatCSV:
		target = base + "/audit/export?format=csv"
	case audit.FormatJSON, "":
		target = base + "/audit"
		if opts.action != "" {
			target += "?action=" + url.QueryEscape(opts.action)
		}
	default:
		return fmt.Errorf("unsupported format %q: use json or csv", opts.format)
	}

	if opts.timeout <= 0 {
		opts.timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.ToLower(opts.format) == audit.FormatCSV {
		_, err = io.Copy(out, resp.Body)
		return err
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode audit response: %w", err)
	}
	return writeIndentedJSON(out, payload)
}

func writeIndentedJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
