// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// transfer.go contains the backup and restore commands. Backups are
// Zstandard-compressed JSON dumps of the whole inventory database, usable
// for disaster recovery or for migrating between database backends.

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/model"
)

// backupCmd represents the 'backup' command.
// It dumps all data from the database into a single compressed JSON file.
var backupCmd = &cobra.Command{
	Use:   "backup [output-file]",
	Short: "Create a compressed (zstd) JSON backup of the database",
	Long: `Dumps the entire contents of the inventory database (hosts, deployments,
known host keys, audit log) into a single, Zstandard-compressed JSON file.

If no output file is specified, a default filename
'querioctl-backup-YYYY-MM-DD.json.zst' is used.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		var outputFile string
		if len(args) == 0 {
			outputFile = fmt.Sprintf("querioctl-backup-%s.json.zst", time.Now().Format("2006-01-02"))
		} else {
			outputFile = args[0]
			if !strings.HasSuffix(outputFile, ".zst") {
				outputFile += ".zst"
			}
		}

		fmt.Println(i18n.T("backup.cli_starting"))
		data, err := db.ExportDataForBackup()
		if err != nil {
			return fmt.Errorf("%s", i18n.T("backup.cli_error_export", err))
		}
		if err := writeCompressedBackup(outputFile, data); err != nil {
			return fmt.Errorf("%s", i18n.T("backup.cli_error_write", err))
		}
		fmt.Println(i18n.T("backup.cli_success", outputFile))
		return nil
	},
}

// restoreCmd represents the 'restore' command.
// It restores the database from a compressed JSON backup file.
var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file.zst>",
	Short: "Restore the database from a compressed JSON backup",
	Long: `Restores the inventory database from a Zstandard-compressed JSON backup
file. The restore is non-destructive: only hosts and host keys that do not
already exist are added. To move to a fresh database, point database.dsn at
a new file first.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		inputFile := args[0]
		fmt.Println(i18n.T("restore.cli_starting", inputFile))
		data, err := readCompressedBackup(inputFile)
		if err != nil {
			return fmt.Errorf("%s", i18n.T("restore.cli_error_read", err))
		}
		if err := db.ImportDataFromBackup(data); err != nil {
			return fmt.Errorf("%s", i18n.T("restore.cli_error_import", err))
		}
		fmt.Println(i18n.T("restore.cli_success"))
		return nil
	},
}

// readCompressedBackup handles reading and decoding a zstd-compressed JSON
// backup file.
func readCompressedBackup(filename string) (*model.BackupData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	var backupData model.BackupData
	if err := json.NewDecoder(zstdReader).Decode(&backupData); err != nil {
		return nil, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}

	return &backupData, nil
}

// writeCompressedBackup streams the JSON encoding directly to the zstd
// writer for memory efficiency.
func writeCompressedBackup(filename string, data *model.BackupData) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	zstdWriter, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	defer func() { _ = zstdWriter.Close() }()

	encoder := json.NewEncoder(zstdWriter)
	encoder.SetIndent("", "  ") // Pretty-print the JSON inside the compressed file

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("could not encode json to zstd writer: %w", err)
	}

	return nil
}
