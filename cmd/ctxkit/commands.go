package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/schema"
	"github.com/xxxsen/ctxkit/internal/service"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "rebuild the embedding index from stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				info, err := a.index.Rebuild(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (version %d, dim %d, model %s)\n",
					info.Count, info.Version, info.Dim, info.ModelName)
				return nil
			})
		},
	}
}

func newFindCmd(flags *rootFlags) *cobra.Command {
	var (
		project string
		topK    int
	)
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "list packs relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				candidates, err := a.contexts.Search(ctx, strings.Join(args, " "), project, topK)
				if err != nil {
					return err
				}
				printCandidates(cmd.OutOrStdout(), candidates)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "only packs of this project")
	cmd.Flags().IntVar(&topK, "top-k", 10, "maximum packs to list")
	return cmd
}

func printCandidates(w io.Writer, candidates []model.Candidate) {
	if len(candidates) == 0 {
		fmt.Fprintln(w, "no matching packs")
		return
	}
	for i, c := range candidates {
		fmt.Fprintf(w, "%2d. %.3f  %s\n", i+1, c.Score, c.Path)
		if c.Document != nil {
			fmt.Fprintf(w, "    %s (project: %s)\n", c.Document.Title, c.Document.Project)
		}
	}
}

func newAutoCmd(flags *rootFlags) *cobra.Command {
	var (
		project    string
		maxTokens  int
		schemaFile string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "auto <prompt>",
		Short: "compose a prompt prefixed with relevant context packs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := readSchemaFile(schemaFile)
			if err != nil {
				return err
			}
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				resp, err := a.contexts.ComposeContext(ctx, service.ComposeRequest{
					Prompt:        strings.Join(args, " "),
					MaxTokens:     maxTokens,
					CurrentSchema: current,
					Project:       project,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), resp.Text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "only packs of this project")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "token budget, config default when zero")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "current schema JSON for drift markers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full compose response as JSON")
	return cmd
}

func newPackCmd(flags *rootFlags) *cobra.Command {
	packCmd := &cobra.Command{
		Use:   "pack",
		Short: "manage context packs",
	}
	var skipIndex bool
	addCmd := &cobra.Command{
		Use:   "add <file.yaml>...",
		Short: "import YAML pack files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				for _, file := range args {
					pack, err := a.packs.ImportFile(ctx, file)
					if err != nil {
						return fmt.Errorf("import %s: %w", file, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %s (%d artifacts)\n", pack.Path, len(pack.Artifacts))
				}
				if skipIndex {
					return nil
				}
				info, err := a.index.Rebuild(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents\n", info.Count)
				return nil
			})
		},
	}
	addCmd.Flags().BoolVar(&skipIndex, "no-index", false, "skip the index rebuild after import")
	packCmd.AddCommand(addCmd)
	return packCmd
}

func newSchemaCmd(flags *rootFlags) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "fingerprint, record and introspect database schemas",
	}

	fingerprintCmd := &cobra.Command{
		Use:   "fingerprint <schema.json>",
		Short: "print the fingerprint of a schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}
			fp, err := schema.Fingerprint(doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp)
			return nil
		},
	}

	var slug string
	snapshotCmd := &cobra.Command{
		Use:   "snapshot <schema.json>",
		Short: "record a schema snapshot in the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				snap, err := a.schemas.Snapshot(ctx, slug, doc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", snap.Fingerprint, snap.Slug)
				return nil
			})
		},
	}
	snapshotCmd.Flags().StringVar(&slug, "slug", "", "snapshot label")

	var (
		dsn  string
		save bool
	)
	introspectCmd := &cobra.Command{
		Use:   "introspect",
		Short: "read the live schema of a postgres database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				target := dsn
				if target == "" && a.cfg.Database.Driver == "postgres" {
					target = a.cfg.Database.DSN
				}
				if target == "" {
					return fmt.Errorf("--dsn is required")
				}
				doc, err := a.schemas.Introspect(ctx, target)
				if err != nil {
					return err
				}
				if save {
					if _, err := a.schemas.Snapshot(ctx, slug, doc); err != nil {
						return err
					}
				}
				return writeJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
	introspectCmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string")
	introspectCmd.Flags().BoolVar(&save, "save", false, "also record the result as a snapshot")
	introspectCmd.Flags().StringVar(&slug, "slug", "", "snapshot label used with --save")

	schemaCmd.AddCommand(fingerprintCmd, snapshotCmd, introspectCmd)
	return schemaCmd
}

func newDriftCmd(flags *rootFlags) *cobra.Command {
	driftCmd := &cobra.Command{
		Use:   "drift",
		Short: "check packs against the current schema",
	}
	var schemaFile string

	checkCmd := &cobra.Command{
		Use:   "check <pack-path>",
		Short: "check one pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := readSchemaFile(schemaFile)
			if err != nil {
				return err
			}
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				res, err := a.schemas.CheckPack(ctx, args[0], current)
				if err != nil {
					return err
				}
				printCompat(cmd.OutOrStdout(), args[0], res)
				return nil
			})
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "check every pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := readSchemaFile(schemaFile)
			if err != nil {
				return err
			}
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				results, err := a.schemas.Scan(ctx, current)
				if err != nil {
					return err
				}
				for _, r := range results {
					printCompat(cmd.OutOrStdout(), r.Path, r.Result)
				}
				return nil
			})
		},
	}

	diffCmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "compare two schema documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDoc, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}
			newDoc, err := readSchemaFile(args[1])
			if err != nil {
				return err
			}
			printCompat(cmd.OutOrStdout(), args[1], schema.Diff(oldDoc, newDoc))
			return nil
		},
	}

	for _, c := range []*cobra.Command{checkCmd, scanCmd} {
		c.Flags().StringVar(&schemaFile, "schema", "", "current schema JSON, latest snapshot when empty")
	}
	driftCmd.AddCommand(checkCmd, scanCmd, diffCmd)
	return driftCmd
}

func printCompat(w io.Writer, path string, res model.CompatibilityResult) {
	fmt.Fprintf(w, "%-10s %s\n", res.Level, path)
	for _, note := range res.Notes {
		fmt.Fprintf(w, "           %s\n", note)
	}
}

// readSchemaFile returns nil for an empty path.
func readSchemaFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	doc, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
