package vault

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// remoteArchiveName is the single file this vault's on-disk tree is packed
// into on the remote drive. A vault directory is vault-config.json +
// items.json.pvlt + files/*.pvlt, so Push/Pull round-trip a zip archive of
// the directory rather than a single file.
const remoteArchiveName = "vault.zip"

// GoogleDriveSync is a Syncer backed by a user's Google Drive. Only the
// already-encrypted on-disk tree ever leaves the machine.
type GoogleDriveSync struct {
	token *oauth2.Token
}

func loadToken() (*oauth2.Token, error) {
	path := filepath.Join(os.Getenv("HOME"), ".go-vault", "token.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (g *GoogleDriveSync) client(ctx context.Context) (*drive.Service, error) {
	credPath := filepath.Join(os.Getenv("HOME"), ".go-vault", "credentials.json")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	client := cfg.Client(ctx, g.token)
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return srv, nil
}

func (g *GoogleDriveSync) sync(vaultDir string, upload bool) error {
	ctx := context.Background()

	srv, err := g.client(ctx)
	if err != nil {
		return err
	}

	r, err := srv.Files.List().Q(fmt.Sprintf("name='%s'", remoteArchiveName)).Do()
	if err != nil {
		return fmt.Errorf("failed to query Drive: %w", err)
	}

	var fileID string
	if len(r.Files) > 0 {
		fileID = r.Files[0].Id
	}

	if upload {
		archive, err := zipDir(vaultDir)
		if err != nil {
			return fmt.Errorf("failed to archive local vault: %w", err)
		}

		if fileID == "" {
			f := &drive.File{Name: remoteArchiveName}
			if _, err := srv.Files.Create(f).Media(bytes.NewReader(archive)).Do(); err != nil {
				return fmt.Errorf("failed to upload vault: %w", err)
			}
		} else {
			if _, err := srv.Files.Update(fileID, nil).Media(bytes.NewReader(archive)).Do(); err != nil {
				return fmt.Errorf("failed to update vault: %w", err)
			}
		}
		return nil
	}

	if fileID == "" {
		return fmt.Errorf("no remote vault found on Google Drive")
	}
	resp, err := srv.Files.Get(fileID).Download()
	if err != nil {
		return fmt.Errorf("failed to download vault: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read downloaded vault: %w", err)
	}
	if err := unzipDir(data, vaultDir); err != nil {
		return fmt.Errorf("failed to write local vault: %w", err)
	}
	return nil
}

// Pull downloads and unpacks the remote vault tree into vaultDir.
func (g *GoogleDriveSync) Pull(vaultDir string) error {
	if g.token == nil {
		tok, _ := loadToken()
		g.token = tok
	}
	return g.sync(vaultDir, false)
}

// Push packs vaultDir and uploads it to Google Drive.
func (g *GoogleDriveSync) Push(vaultDir string) error {
	if g.token == nil {
		tok, _ := loadToken()
		g.token = tok
	}
	return g.sync(vaultDir, true)
}

// zipDir archives every regular file under dir (for a vault directory:
// vault-config.json, items.json.pvlt, and files/*.pvlt) into a single zip,
// preserving relative paths.
func zipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unzipDir extracts archive into dir, rejecting entries that would escape
// it (zip-slip).
func unzipDir(archive []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
