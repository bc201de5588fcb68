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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
	recoverpkg "github.com/nullsector/volrecover/internal/recover"
	"github.com/nullsector/volrecover/pkg/dfxml"
	osutils "github.com/nullsector/volrecover/pkg/util/os"
)

func DefineRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <device> <report_file> <dest_dir>",
		Short: "Recover files listed in a 'scan' report",
		Long: `The 'recover' command extracts files from a disk image or device based on
a DFXML report produced by 'scan'. dest_dir must resolve to a different
volume than <device>.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         RunRecover,
	}
	return cmd
}

func RunRecover(cmd *cobra.Command, args []string) error {
	devicePath := disk.NormalizeVolumePath(args[0])
	reportPath := args[1]
	destDir := args[2]

	dev, err := disk.Open(devicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	reportFile, err := os.Open(reportPath)
	if err != nil {
		return err
	}
	defer reportFile.Close()

	objects, err := dfxml.ReadFileObjects(reportFile)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	if _, err := osutils.EnsureDir(destDir, false); err != nil {
		return err
	}

	files := make([]model.DeletedEntry, 0, len(objects))
	for _, obj := range objects {
		files = append(files, dfxml.ToDeletedEntry(obj))
	}

	ok := recoverpkg.RecoverMany(dev, files, driveLetterOf(devicePath), destDir, func(msg string, fraction float64) {
		fmt.Fprintln(os.Stdout, msg)
	})
	if !ok {
		return fmt.Errorf("no files were recovered")
	}
	return nil
}

func driveLetterOf(devicePath string) string {
	devicePath = strings.TrimPrefix(devicePath, `\\.\`)
	if len(devicePath) >= 2 && devicePath[1] == ':' {
		return strings.ToUpper(devicePath[:1])
	}
	return ""
}

