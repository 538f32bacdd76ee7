package cmd

import (
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/output"
	"github.com/ldamasio/b2-go/internal/syncconfig"
)

func newDownloadFileByIDCmd(a *app) *cobra.Command {
	var noProgress bool
	c := &cobra.Command{
		Use:   "[--noProgress]",
		Short: "Download a file version by its ID",
		Long: `Downloads the given file version and stores it in the given local file.
The SHA1 announced by the service is checked against the content.`,
	}
	c.Flags().BoolVar(&noProgress, "noProgress", false, "Accepted for compatibility; progress is never shown")
	withPositionals(c, required("fileId"), required("localFileName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.downloadTo(args[1], func(w io.Writer) (b2.DownloadInfo, error) {
			return a.api.DownloadFileByID(c.Context(), args[0], w)
		})
	}
	return c
}

func newDownloadFileByNameCmd(a *app) *cobra.Command {
	var noProgress bool
	c := &cobra.Command{
		Use:   "[--noProgress]",
		Short: "Download the latest version of a file by its name",
		Long: `Downloads the latest version of the given file name and stores it in
the given local file. The SHA1 announced by the service is checked against
the content.`,
	}
	c.Flags().BoolVar(&noProgress, "noProgress", false, "Accepted for compatibility; progress is never shown")
	withPositionals(c, required("bucketName"), required("b2FileName"), required("localFileName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.downloadTo(args[2], func(w io.Writer) (b2.DownloadInfo, error) {
			return a.api.DownloadFileByName(c.Context(), args[0], args[1], w)
		})
	}
	return c
}

// downloadTo writes a download into localPath and prints its description.
// A failed download leaves no file behind.
func (a *app) downloadTo(localPath string, download func(io.Writer) (b2.DownloadInfo, error)) error {
	f, err := os.Create(localPath)
	if err != nil {
		return clierr.Wrap(clierr.Domain, errors.Wrapf(err, "cannot write %s", localPath))
	}
	info, err := download(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "close %s", localPath)
	}
	if err != nil {
		os.Remove(localPath)
		return err
	}
	return a.printDownloadInfo(info)
}

func (a *app) printDownloadInfo(info b2.DownloadInfo) error {
	lines := [][]string{
		{"File name:   ", info.FileName},
		{"File id:     ", info.FileID},
		{"File size:   ", strconv.FormatInt(info.ContentLength, 10)},
		{"Content type:", info.ContentType},
		{"Content sha1:", info.ContentSha1},
	}
	names := make([]string, 0, len(info.Info))
	for name := range info.Info {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, []string{"INFO", name + ":", info.Info[name]})
	}
	if info.ContentSha1 != "none" {
		lines = append(lines, []string{"checksum matches"})
	}
	for _, line := range lines {
		if err := a.printer.Print(line...); err != nil {
			return err
		}
	}
	return nil
}

func newUploadFileCmd(a *app) *cobra.Command {
	var (
		noProgress  bool
		quiet       bool
		contentType string
		minPartSize int
		sha1        string
		threads     int
		infos       []string
	)
	c := &cobra.Command{
		Use:   "[--sha1 <sha1sum>] [--contentType <contentType>] [--info <key>=<value>]... [--minPartSize N] [--noProgress] [--threads N] [--quiet]",
		Short: "Upload a local file",
		Long: `Uploads one file to the given bucket under the given name.

The content type defaults to b2/x-auto, which lets the service pick one
from the file name extension. The SHA1 is computed from the file unless
--sha1 gives it. Each --info adds one key=value pair of file info; the
local modification time is always recorded as src_last_modified_millis.

Unless --quiet is given, prints the download URLs of the new file followed
by its description.`,
	}
	f := c.Flags()
	f.BoolVar(&noProgress, "noProgress", false, "Accepted for compatibility; progress is never shown")
	f.BoolVar(&quiet, "quiet", false, "Print nothing on success")
	f.StringVar(&contentType, "contentType", "", "Content type of the file")
	f.IntVar(&minPartSize, "minPartSize", 0, "Accepted for compatibility; uploads use a single part")
	f.StringVar(&sha1, "sha1", "", "SHA1 of the file, computed when absent")
	f.IntVar(&threads, "threads", syncconfig.DefaultThreads, "Number of parallel transfers")
	f.StringArrayVar(&infos, "info", nil, "File info key=value; repeatable")
	withPositionals(c, required("bucketName"), required("localFilePath"), required("b2FileName"))

	c.RunE = func(c *cobra.Command, args []string) error {
		bucketName, localPath, fileName := args[0], args[1], args[2]
		fileInfo, err := parseFileInfos(infos)
		if err != nil {
			return err
		}
		if err := a.api.SetThreadPoolSize(threads); err != nil {
			return clierr.Wrap(clierr.Configuration, err)
		}
		if st, err := os.Stat(localPath); err != nil {
			return clierr.Wrap(clierr.Domain, errors.Wrapf(err, "cannot read %s", localPath))
		} else if st.IsDir() {
			return clierr.Domainf("%s is a directory", localPath)
		}
		bucket, err := a.api.BucketByName(c.Context(), bucketName)
		if err != nil {
			return err
		}
		_, raw, err := a.api.UploadFile(c.Context(), b2.UploadRequest{
			BucketID:    bucket.ID,
			FileName:    fileName,
			LocalPath:   localPath,
			ContentType: contentType,
			Sha1:        sha1,
			Info:        fileInfo,
		})
		if err != nil {
			return err
		}
		if quiet {
			return nil
		}
		byName, err := a.api.DownloadURLForFileName(bucketName, fileName)
		if err != nil {
			return err
		}
		a.printer.Print("URL by file name: " + byName)
		if id, _ := raw["fileId"].(string); id != "" {
			byID, err := a.api.DownloadURLForFileID(id)
			if err != nil {
				return err
			}
			a.printer.Print("URL by fileId: " + byID)
		}
		return a.printer.PrintJSON(raw, output.IndentNarrow)
	}
	return c
}
