package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/fieldsync/internal/config"
	"github.com/muurk/fieldsync/internal/protocol"
	"github.com/muurk/fieldsync/internal/server"
)

// Config command flags
var (
	configOut   string
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Example: `  # Write to the default location
  fieldsync-server config init

  # Write somewhere else, replacing any existing file
  fieldsync-server config init --path ./server.yaml --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the server would start with, after applying the
environment on top of the configuration file.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.PersistentFlags().StringVar(&configOut, "path", "", "Configuration file (default: OS config directory)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configOut
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if !configForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot access %s: %w", path, err)
		}
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configOut)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is not valid: %w", err)
	}
	return nil
}

// Schema command flags
var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the wire messages",
	Long: `Print a JSON Schema document describing every message a client may send
and every message the server may send.`,
	Example: `  # Print to stdout
  fieldsync-server schema

  # Write to a file for frontend code generation
  fieldsync-server schema --out protocol.schema.json`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(protocol.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	data = append(data, '\n')

	if schemaOut == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	tmpPath := schemaOut + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	if err := os.Rename(tmpPath, schemaOut); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write schema: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote schema to %s\n", schemaOut)
	return nil
}

// Analyze command flags
var (
	analyzeSummary bool
	analyzeHex     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture.jsonl>",
	Short: "Decode a frame capture",
	Long: `Decode a capture written with --capture-dir and print one line per frame,
followed by counts per connection, direction and message type. Text frames
that do not decode as protocol messages are listed separately.`,
	Example: `  # Frame by frame listing and summary
  fieldsync-server analyze captures/capture-20250101-120000.jsonl

  # Summary only
  fieldsync-server analyze --summary captures/capture-20250101-120000.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeSummary, "summary", false, "Only print the summary")
	analyzeCmd.Flags().BoolVar(&analyzeHex, "hex", false, "Hex dump non-text payloads")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	records, err := server.ReadCaptureFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Capture %s ===\n\n", args[0])

	if !analyzeSummary {
		for _, rec := range records {
			fmt.Fprintln(out, rec.Describe())
			if analyzeHex && rec.Opcode != protocol.OpcodeText {
				payload, err := rec.Payload()
				if err != nil {
					return fmt.Errorf("message %d: %w", rec.MessageNum, err)
				}
				if len(payload) > 0 {
					fmt.Fprint(out, hex.Dump(payload))
				}
			}
		}
		fmt.Fprintln(out)
	}

	_, err = server.Summarize(records).WriteTo(out)
	return err
}
