package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/site-content-server/content"
)

func newContentCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Read, edit and reset content records.",
	}
	cmd.AddCommand(newContentGetCommand(load))
	cmd.AddCommand(newContentSetCommand(load))
	cmd.AddCommand(newContentResetCommand(load))
	cmd.AddCommand(newContentExportCommand(load))
	cmd.AddCommand(newContentStatusCommand(load))
	return cmd
}

func kindsUsage() string {
	names := make([]string, len(content.Kinds))
	for i, k := range content.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func newContentGetCommand(load loader) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "get <kind>",
		Short: "Print a record as JSON. Kinds: " + kindsUsage() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := content.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			cs, kv, err := openContent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer kv.Close()

			raw, err := json.MarshalIndent(cs.Get(kind), "", "  ")
			if err != nil {
				return err
			}
			if query == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			}
			res := gjson.GetBytes(raw, query)
			if !res.Exists() {
				return errors.Errorf("no value at %q", query)
			}
			if res.Type == gjson.String {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), res.String())
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Raw)
			return err
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "gjson path to print instead of the whole record, e.g. hours.0.day.")
	return cmd
}

// readDocument reads a JSON or YAML document and returns it as JSON.
func readDocument(r io.Reader, name string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", name)
	}
	return json.Marshal(doc)
}

func newContentSetCommand(load loader) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set <kind> -f <file>",
		Short: "Store a record override from a JSON or YAML file (- for stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := content.ParseKind(args[0])
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := readDocument(in, file)
			if err != nil {
				return err
			}
			rec, err := content.Decode(kind, raw)
			if err != nil {
				return err
			}

			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			cs, kv, err := openContent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer kv.Close()
			if err := cs.Update(rec); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s override.\n", kind)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Record file; .json is read as JSON, anything else as YAML.")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newContentResetCommand(load loader) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [kind]",
		Short: "Remove a record override, or every override with --all.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either a kind or --all")
			}
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			cs, kv, err := openContent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer kv.Close()

			if all {
				if err := cs.ResetAll(); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Restored every default.")
				return err
			}
			kind, err := content.ParseKind(args[0])
			if err != nil {
				return err
			}
			if err := cs.Reset(kind); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s default.\n", kind)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reset every kind.")
	return cmd
}

func newContentExportCommand(load loader) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print every record, keyed by kind.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			cs, kv, err := openContent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer kv.Close()

			all := cs.All()
			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(all); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(all)
			}
			return errors.Errorf("unknown format %q (supported: yaml, json)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json.")
	return cmd
}

func newContentStatusCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List which kinds are overridden and which serve their default.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			cs, kv, err := openContent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer kv.Close()

			overridden, err := cs.Overridden()
			if err != nil {
				return err
			}
			set := make(map[content.Kind]bool, len(overridden))
			for _, k := range overridden {
				set[k] = true
			}
			for _, k := range content.Kinds {
				state := "default"
				if set[k] {
					state = "override"
					if _, err := cs.Lookup(k); err != nil {
						state = "override (unreadable, serving default)"
					}
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", k, state); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
