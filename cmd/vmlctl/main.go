package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		apiBase    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:           "vmlctl",
		Short:         "Utility for querying the vmledger inventory API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&apiBase, "api", "", "Base URL of the vmledger API (overrides config file)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the vmlctl config file (default ~/.vmlctl.yaml)")

	client := &apiClient{}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(configPath)
		if err != nil {
			return err
		}
		if apiBase != "" {
			cfg.APIBase = apiBase
		}
		if cfg.APIBase == "" {
			return fmt.Errorf("api base url required: pass --api or set api_base in the config file")
		}
		client.configure(cfg)
		return nil
	}

	cmd.AddCommand(newSyncCommand(client))
	cmd.AddCommand(newObjectsCommand(client))
	cmd.AddCommand(newChangesCommand(client))
	cmd.AddCommand(newOverrideCommand(client))
	return cmd
}

func newSyncCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync run operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newSyncStartCommand(client))
	cmd.AddCommand(newSyncStatusCommand(client))
	cmd.AddCommand(newSyncRunsCommand(client))
	return cmd
}

func newSyncStartCommand(client *apiClient) *cobra.Command {
	var (
		platform string
		resource string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a sync run for one platform and resource type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.startSync(cmd.Context(), platform, resource)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Platform to sync (nutanix or vmware)")
	cmd.Flags().StringVar(&resource, "resource", "vm", "Resource type to sync")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newSyncStatusCommand(client *apiClient) *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest run per resource type for a platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.syncStatus(cmd.Context(), platform)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Platform to inspect")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newSyncRunsCommand(client *apiClient) *cobra.Command {
	var (
		platform string
		resource string
		status   string
		page     int
		perPage  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.listRuns(cmd.Context(), platform, resource, status, page, perPage)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&resource, "resource", "", "Filter by resource type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by run status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 50, "Results per page")
	return cmd
}

func newObjectsCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Inventory object operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newObjectsListCommand(client))
	cmd.AddCommand(newObjectsGetCommand(client))
	return cmd
}

func newObjectsListCommand(client *apiClient) *cobra.Command {
	var (
		platform string
		kind     string
		name     string
		missing  bool
		page     int
		perPage  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory objects with overrides applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.listObjects(cmd.Context(), objectListOptions{
				Platform: platform,
				Kind:     kind,
				Name:     name,
				Missing:  missing && cmd.Flags().Changed("missing"),
				Page:     page,
				PerPage:  perPage,
			})
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by object kind (vm or host)")
	cmd.Flags().StringVar(&name, "name", "", "Filter by display name substring")
	cmd.Flags().BoolVar(&missing, "missing", false, "Only objects currently missing from their platform")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 50, "Results per page")
	return cmd
}

func newObjectsGetCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <object-id>",
		Short: "Show one object with overrides applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.getObject(cmd.Context(), args[0])
		},
	}
	return cmd
}

func newChangesCommand(client *apiClient) *cobra.Command {
	var (
		changeType string
		platform   string
		objectID   string
		since      string
		until      string
		page       int
		perPage    int
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Query the change audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.listChanges(cmd.Context(), changeListOptions{
				ChangeType: changeType,
				Platform:   platform,
				ObjectID:   objectID,
				Since:      since,
				Until:      until,
				Page:       page,
				PerPage:    perPage,
			})
		},
	}

	cmd.Flags().StringVar(&changeType, "type", "", "Filter by change type (e.g. POWER_STATE)")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&objectID, "object", "", "Filter by object id")
	cmd.Flags().StringVar(&since, "since", "", "Only changes at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Only changes before this RFC 3339 time")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 50, "Results per page")
	return cmd
}

func newOverrideCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manual override operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newOverrideSetCommand(client))
	cmd.AddCommand(newOverrideUnsetCommand(client))
	return cmd
}

func newOverrideSetCommand(client *apiClient) *cobra.Command {
	var updatedBy string

	cmd := &cobra.Command{
		Use:   "set <object-id> <field> <value>",
		Short: "Set a manual override on an object field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.setOverride(cmd.Context(), args[0], args[1], &args[2], updatedBy)
		},
	}

	cmd.Flags().StringVar(&updatedBy, "by", "", "Operator name recorded with the override")
	return cmd
}

func newOverrideUnsetCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unset <object-id> <field>",
		Short: "Disable an override, reverting the field to its platform fact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.setOverride(cmd.Context(), args[0], args[1], nil, "")
		},
	}
	return cmd
}
