package main

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sethdford/hivemind/internal/config"
	"github.com/sethdford/hivemind/internal/vault"
)

// runBackup archives the engine's data directory as tar+zstd. With
// HIVEMIND_BACKUP_PASSPHRASE set, the finished archive is sealed with
// the vault so the file is unreadable at rest.
func runBackup(args []string) error {
	var outputPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}
	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: hivemind backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := filepath.Dir(cfg.Store.Path)

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("write tar data: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", dataDir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}

	data := buf.Bytes()
	if pass := os.Getenv("HIVEMIND_BACKUP_PASSPHRASE"); pass != "" {
		data, err = vault.New(pass).Seal(data)
		if err != nil {
			return fmt.Errorf("encrypt archive: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	fmt.Printf("Backup complete: %s (%s)\n", outputPath, formatSize(int64(len(data))))
	return nil
}

// runRestore unpacks an archive into the data directory. Existing
// files are only replaced with -overwrite.
func runRestore(args []string) error {
	var inputPath string
	overwrite := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}
	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: hivemind restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := filepath.Dir(cfg.Store.Path)

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if pass := os.Getenv("HIVEMIND_BACKUP_PASSPHRASE"); pass != "" {
		data, err = vault.New(pass).Open(data)
		if err != nil {
			return fmt.Errorf("decrypt archive: %w", err)
		}
	}

	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(name, "..") {
			return fmt.Errorf("archive entry escapes data dir: %s", hdr.Name)
		}
		target := filepath.Join(dataDir, name)

		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
			continue
		}

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("%s already exists, add -overwrite to replace files", target)
			}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("write file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close file: %w", err)
		}
		restored++
	}

	fmt.Printf("Restore complete: %d files\n", restored)
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
