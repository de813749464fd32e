/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// appcorectl is the operator CLI for the execution core's HTTP API: it
// registers specifications and datasets and submits, inspects, lists, and
// deletes runs. Grounded on the teacher's cmd/legatorctl, rebuilt on cobra
// since this project already depends on it elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server string
	var project int64
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "appcorectl",
		Short:         "Operate the appcore execution core over its HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "appcore server address")
	root.PersistentFlags().Int64Var(&project, "project", 1, "project ID")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of a table")

	client := func() *APIClient { return NewAPIClient(server) }

	root.AddCommand(newSpecCmd(client, &project, &jsonOutput))
	root.AddCommand(newDatasetCmd(client, &project, &jsonOutput))
	root.AddCommand(newRunCmd(client, &project, &jsonOutput))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the appcorectl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("appcorectl %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	})

	return root
}

func newSpecCmd(client func() *APIClient, project *int64, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "spec", Short: "Register and inspect specifications"}

	var file string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSpecText(file, args)
			if err != nil {
				return err
			}
			spec, err := client().RegisterSpec(cmd.Context(), *project, text)
			if err != nil {
				return err
			}
			return printSpec(cmd.OutOrStdout(), spec, *jsonOutput)
		},
	}
	register.Flags().StringVarP(&file, "file", "f", "", "path to the specification text file (default: read stdin)")
	cmd.AddCommand(register)

	show := &cobra.Command{
		Use:   "show <hash>",
		Short: "Show a registered specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := client().GetSpec(cmd.Context(), *project, args[0])
			if err != nil {
				return err
			}
			return printSpec(cmd.OutOrStdout(), spec, *jsonOutput)
		},
	}
	cmd.AddCommand(show)

	return cmd
}

func newDatasetCmd(client func() *APIClient, project *int64, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "dataset", Short: "Register and inspect datasets"}

	var file string
	register := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a dataset's rows (a JSON array) under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRows(file)
			if err != nil {
				return err
			}
			ds, err := client().RegisterDataset(cmd.Context(), *project, args[0], raw)
			if err != nil {
				return err
			}
			return printDataset(cmd.OutOrStdout(), ds, *jsonOutput)
		},
	}
	register.Flags().StringVarP(&file, "file", "f", "", "path to a JSON array file (default: read stdin)")
	cmd.AddCommand(register)

	var hash string
	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a registered dataset's latest (or --hash) version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := client().GetDataset(cmd.Context(), *project, args[0], hash)
			if err != nil {
				return err
			}
			return printDataset(cmd.OutOrStdout(), ds, *jsonOutput)
		},
	}
	show.Flags().StringVar(&hash, "hash", "", "specific dataset version hash")
	cmd.AddCommand(show)

	return cmd
}

func newRunCmd(client func() *APIClient, project *int64, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "run", Short: "Submit and inspect runs"}

	var specHash, datasetName, runType string
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a run against a registered specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := client().SubmitRun(cmd.Context(), *project, SubmitRunRequest{
				SpecHash:    specHash,
				DatasetName: datasetName,
				RunType:     runType,
			})
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), run, *jsonOutput)
		},
	}
	submit.Flags().StringVar(&specHash, "spec", "", "specification hash to execute")
	submit.Flags().StringVar(&datasetName, "dataset", "", "registered dataset name to use as input")
	submit.Flags().StringVar(&runType, "type", "execute", "run type: deploy, local, or execute")
	_ = submit.MarkFlagRequired("spec")
	cmd.AddCommand(submit)

	get := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run's status and block traces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := client().GetRun(cmd.Context(), *project, args[0])
			if err != nil {
				return err
			}
			return PrintJSON(cmd.OutOrStdout(), run)
		},
	}
	cmd.AddCommand(get)

	var listRunType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := client().ListRuns(cmd.Context(), *project, listRunType)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return PrintJSON(cmd.OutOrStdout(), runs)
			}
			rows := make([][]string, 0, len(runs.Runs))
			for _, r := range runs.Runs {
				rows = append(rows, []string{r.ID, r.RunType, r.Status.Run, Truncate(r.AppHash, 12)})
			}
			RenderTable(cmd.OutOrStdout(), []string{"ID", "TYPE", "STATUS", "APP HASH"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "%d total\n", runs.Total)
			return nil
		},
	}
	list.Flags().StringVar(&listRunType, "type", "", "filter by run type")
	cmd.AddCommand(list)

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its block traces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteRun(cmd.Context(), *project, args[0])
		},
	}
	cmd.AddCommand(del)

	return cmd
}

func readSpecText(file string, args []string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		return string(raw), err
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(os.Stdin)
	return string(raw), err
}

func readRows(file string) ([]json.RawMessage, error) {
	var raw []byte
	var err error
	if file != "" {
		raw, err = os.ReadFile(file)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("rows must be a JSON array: %w", err)
	}
	return rows, nil
}

func printSpec(out io.Writer, spec *Specification, jsonOutput bool) error {
	if jsonOutput {
		return PrintJSON(out, spec)
	}
	fmt.Fprintf(out, "hash:        %s\n", spec.Hash)
	fmt.Fprintf(out, "blocks:      %d\n", spec.BlockCount)
	fmt.Fprintf(out, "text:\n%s\n", spec.Text)
	return nil
}

func printDataset(out io.Writer, ds *Dataset, jsonOutput bool) error {
	if jsonOutput {
		return PrintJSON(out, ds)
	}
	fmt.Fprintf(out, "name:  %s\n", ds.Name)
	fmt.Fprintf(out, "hash:  %s\n", ds.Hash)
	fmt.Fprintf(out, "rows:  %d\n", len(ds.Rows))
	return nil
}

func printRun(out io.Writer, run *Run, jsonOutput bool) error {
	if jsonOutput {
		return PrintJSON(out, run)
	}
	fmt.Fprintf(out, "id:        %s\n", run.ID)
	fmt.Fprintf(out, "type:      %s\n", run.RunType)
	fmt.Fprintf(out, "app hash:  %s\n", run.AppHash)
	fmt.Fprintf(out, "status:    %s\n", run.Status.Run)
	return nil
}
