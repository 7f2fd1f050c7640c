package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/download"
	"github.com/instl-run/instl/pkg/executor"
	"github.com/instl-run/instl/pkg/indexio"
	"github.com/instl-run/instl/pkg/infomap"
	"github.com/instl-run/instl/pkg/syncplan"
	"github.com/instl-run/instl/pkg/varstore"
	"github.com/instl-run/instl/pkg/xerrors"
)

func newSyncCmd() *cobra.Command {
	var remoteMapPath, haveMapPath, sourcePath, tag string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a remote info-map against what's installed and download what's missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			remoteFile, err := os.Open(remoteMapPath)
			if err != nil {
				return err
			}
			defer func() { _ = remoteFile.Close() }()
			remote, err := infomap.ReadFrom(remoteFile)
			if err != nil {
				return err
			}

			var have *infomap.Tree
			if haveMapPath != "" {
				if haveFile, err := os.Open(haveMapPath); err == nil {
					defer func() { _ = haveFile.Close() }()
					have, err = infomap.ReadFrom(haveFile)
					if err != nil {
						return err
					}
				}
			}

			result, err := syncplan.Reconcile(remote, have, []syncplan.SourceRequest{
				{Path: sourcePath, Tag: indexio.SourceTag(tag)},
			})
			if err != nil {
				return err
			}

			dl := download.NewHTTPDownloader(cfg.Settings.HTTPTimeout)
			for _, op := range result.Downloads {
				fmt.Printf("downloading %s (rev %d)\n", op.Path, op.Revision)
				dest := cfg.Settings.CacheDir + "/" + op.Path
				if err := downloadVerified(context.Background(), dl, remoteBaseURL()+"/"+op.Path, dest, op.Checksum); err != nil {
					return err
				}
				if op.NeedsUnwtar {
					unwtarDest := cfg.Settings.CacheDir + "/" + strings.TrimSuffix(op.Path, syncplan.WtarSuffix)
					ctx := executor.NewContext(varstore.New(), 1)
					if err := executor.Run(ctx, executor.NewUnwtarStep(dest, unwtarDest)); err != nil {
						return err
					}
				}
			}

			if haveMapPath != "" {
				out, err := os.Create(haveMapPath)
				if err != nil {
					return err
				}
				defer func() { _ = out.Close() }()
				return result.NewHave.Write(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteMapPath, "remote-map", "", "path to the remote info-map file")
	cmd.Flags().StringVar(&haveMapPath, "have-map", "", "path to the local have-map file")
	cmd.Flags().StringVar(&sourcePath, "source", "", "install_sources path to reconcile")
	cmd.Flags().StringVar(&tag, "tag", "!dir", "install source tag")
	_ = cmd.MarkFlagRequired("remote-map")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// downloadVerified fetches url to dest and checksum-verifies against want,
// retrying once on mismatch before failing fatally (spec §4.E step 6).
func downloadVerified(ctx context.Context, dl download.Downloader, url, dest, want string) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := dl.Download(ctx, url, dest); err != nil {
			return err
		}
		if want == "" {
			return nil
		}
		got, err := dl.Checksum(dest)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
		lastErr = xerrors.Wrapf(xerrors.ErrChecksumMismatch, "%s: want %s got %s (attempt %d)", dest, want, got, attempt)
	}
	return lastErr
}

func remoteBaseURL() string {
	for _, r := range cfg.Repositories {
		if r.Enabled {
			return r.URL
		}
	}
	return ""
}
