// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/logger"
	"github.com/nullsector/volrecover/internal/model"
	"github.com/nullsector/volrecover/internal/orchestrate"
	"github.com/nullsector/volrecover/pkg/dfxml"
	"github.com/nullsector/volrecover/pkg/pbar"
)

func DefineScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scan <device>",
		Short:        "Scan a volume or disk image for recoverable deleted files",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunScan,
	}

	cmd.Flags().StringP("output", "o", "", "write results to this DFXML report (required to later run 'recover')")
	cmd.Flags().String("folder", "", "only report files whose path contains this substring")
	cmd.Flags().String("filename", "", "only report files whose name contains this substring")
	cmd.Flags().Bool("no-mft", false, "disable the MFT/directory walk stage")
	cmd.Flags().Bool("no-usn", false, "disable the USN journal correlation stage (NTFS only)")
	cmd.Flags().Bool("no-carve", false, "disable signature carving of free space")
	cmd.Flags().String("log", "", "write structured logs to this file (default: discard)")
	cmd.Flags().String("log-level", "info", "debug, info, warn, or error")
	cmd.Flags().Bool("quiet", false, "suppress the progress bar")

	return cmd
}

func RunScan(cmd *cobra.Command, args []string) error {
	devicePath := disk.NormalizeVolumePath(args[0])

	outputPath, _ := cmd.Flags().GetString("output")
	folderFilter, _ := cmd.Flags().GetString("folder")
	filenameFilter, _ := cmd.Flags().GetString("filename")
	noMFT, _ := cmd.Flags().GetBool("no-mft")
	noUSN, _ := cmd.Flags().GetBool("no-usn")
	noCarve, _ := cmd.Flags().GetBool("no-carve")
	logPath, _ := cmd.Flags().GetString("log")
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	quiet, _ := cmd.Flags().GetBool("quiet")

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevelStr)); err != nil {
		level = slog.LevelInfo
	}

	log, closeLog, err := logger.New(logPath, level)
	if err != nil {
		return err
	}
	defer closeLog()

	dev, err := disk.Open(devicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	log.Info("scan starting", "device", devicePath)

	var out *dfxml.DFXMLWriter
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()

		out = dfxml.NewDFXMLWriter(f)
		hdr := dfxml.DFXMLHeader{
			XmlOutput: dfxml.XmlOutputVersion,
			Metadata:  dfxml.DefaultMetadata,
			Creator: dfxml.Creator{
				Package:              AppName,
				ExecutionEnvironment: dfxml.GetExecEnv(),
			},
			Source: dfxml.Source{
				ImageFilename: devicePath,
				SectorSize:    int(dev.SectorSize()),
				ImageSize:     dev.TotalBytes(),
			},
		}
		if err := out.WriteHeader(hdr); err != nil {
			return err
		}
		defer out.Close()
	}

	bar := pbar.NewState()

	cfg := orchestrate.Config{
		FolderFilter:   folderFilter,
		FilenameFilter: filenameFilter,
		EnableMFT:      !noMFT,
		EnableUSN:      !noUSN,
		EnableCarving:  !noCarve,
	}

	cb := orchestrate.Callbacks{
		FileFound: func(e model.DeletedEntry) {
			bar.FileFound()
			log.Info("found", "name", e.Name, "path", e.Path, "size", e.Size, "recoverable", e.IsRecoverable)
			if out != nil {
				if err := out.WriteFileObject(dfxml.FromDeletedEntry(e)); err != nil {
					log.Error("failed to write report entry", "name", e.Name, "error", err)
				}
			}
		},
		Progress: func(msg string, fraction float64) {
			log.Debug("progress", "msg", msg, "fraction", fraction)
			if !quiet {
				bar.Render(msg, fraction, false)
			}
		},
	}

	found := orchestrate.Scan(dev, cfg, cb)
	if !quiet {
		bar.Render("scan complete", 1, true)
		bar.Finish()
	}

	log.Info("scan finished", "found_any", found)
	if !found {
		fmt.Fprintln(os.Stderr, "no recoverable files found")
	}
	return nil
}
