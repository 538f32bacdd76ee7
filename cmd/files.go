package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/output"
)

func newCopyFileByIDCmd(a *app) *cobra.Command {
	var (
		directive   = newEnumValue(map[string]string{"copy": "COPY", "replace": "REPLACE"})
		contentType string
		byteRange   rangeValue
		infos       []string
	)
	c := &cobra.Command{
		Use:   "[--metadataDirective copy|replace] [--contentType <type>] [--range start,end] [--info <key>=<value>]...",
		Short: "Copy a file version server side",
		Long: `Copies the contents of the source B2 file version to a file name in the
destination bucket, without downloading it.

With --range only the bytes from start to end, inclusive, are copied.

With --metadataDirective replace the copy gets the content type given by
--contentType (b2/x-auto when absent) and the file info given by --info.
With copy, the default, the source's content type and file info are kept.`,
	}
	f := c.Flags()
	f.Var(directive, "metadataDirective", "copy or replace")
	f.StringVar(&contentType, "contentType", "", "Content type of the copy, with --metadataDirective replace")
	f.Var(&byteRange, "range", "Inclusive byte range start,end to copy")
	f.StringArrayVar(&infos, "info", nil, "File info key=value of the copy; repeatable")
	withPositionals(c, required("sourceFileId"), required("destinationBucketName"), required("b2FileName"))

	c.RunE = func(c *cobra.Command, args []string) error {
		fileInfo, err := parseFileInfos(infos)
		if err != nil {
			return err
		}
		bucket, err := a.api.BucketByName(c.Context(), args[1])
		if err != nil {
			return err
		}
		req := b2.CopyFileRequest{
			SourceFileID:        args[0],
			FileName:            args[2],
			DestinationBucketID: bucket.ID,
			Range:               byteRange.get(),
			MetadataDirective:   directive.value,
			ContentType:         contentType,
		}
		if len(infos) > 0 {
			req.FileInfo = fileInfo
		}
		raw, err := a.api.CopyFile(c.Context(), req)
		if err != nil {
			return err
		}
		return a.printer.PrintJSON(raw, output.IndentNarrow)
	}
	return c
}

func newDeleteFileVersionCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Permanently delete one file version",
		Long: `Permanently and irrevocably deletes one version of a file.

The file name may be omitted, in which case it is looked up from the ID.`,
	}
	pos := withPositionals(c, optional("fileName"), required("fileId"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bound := pos.bind(args)
		fileID := bound["fileId"]
		fileName, ok := bound["fileName"]
		if !ok {
			info, err := a.api.GetFileInfo(c.Context(), fileID)
			if err != nil {
				return err
			}
			fileName, _ = info["fileName"].(string)
		}
		raw, err := a.api.DeleteFileVersion(c.Context(), fileName, fileID)
		if err != nil {
			return err
		}
		return a.printer.PrintJSON(raw, output.IndentNarrow)
	}
	return c
}

func newGetFileInfoCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Print the metadata of a file version",
		Long:  "Prints all of the information about the file, but not its contents.",
	}
	withPositionals(c, required("fileId"))
	c.RunE = func(c *cobra.Command, args []string) error {
		raw, err := a.api.GetFileInfo(c.Context(), args[0])
		if err != nil {
			return err
		}
		return a.printer.PrintJSON(raw, output.IndentNarrow)
	}
	return c
}

func newHideFileCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Hide a file name",
		Long:  "Uploads a new, hidden, version of the given file.",
	}
	withPositionals(c, required("bucketName"), required("fileName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.BucketByName(c.Context(), args[0])
		if err != nil {
			return err
		}
		_, raw, err := a.api.HideFile(c.Context(), bucket.ID, args[1])
		if err != nil {
			return err
		}
		return a.printer.PrintJSON(raw, output.IndentNarrow)
	}
	return c
}

// listPageFlags are the flags of the raw listing commands.
type listPageFlags struct {
	startFileName string
	startFileID   string
	maxToShow     int
	prefix        string
}

func newListFileNamesCmd(a *app) *cobra.Command {
	var lf listPageFlags
	c := &cobra.Command{
		Use:   "[--startFileName <name>] [--maxToShow <n>] [--prefix <prefix>]",
		Short: "Print one page of file names",
		Long: `Lists the names of the files in a bucket, starting at the given point.
This is a low-level operation that reports the raw JSON returned by the
service. The 'ls' command is easier to use.`,
	}
	f := c.Flags()
	f.StringVar(&lf.startFileName, "startFileName", "", "First file name to list")
	f.IntVar(&lf.maxToShow, "maxToShow", 0, "Maximum number of names on the page")
	f.StringVar(&lf.prefix, "prefix", "", "Only list names with this prefix")
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.printFilePage(c.Context(), args[0], lf, a.api.ListFileNames)
	}
	return c
}

func newListFileVersionsCmd(a *app) *cobra.Command {
	var lf listPageFlags
	c := &cobra.Command{
		Use:   "[--startFileName <name>] [--startFileId <id>] [--maxToShow <n>] [--prefix <prefix>]",
		Short: "Print one page of file versions",
		Long: `Lists the versions of the files in a bucket, starting at the given
point. This is a low-level operation that reports the raw JSON returned by
the service. The 'ls' command is easier to use.`,
	}
	f := c.Flags()
	f.StringVar(&lf.startFileName, "startFileName", "", "First file name to list")
	f.StringVar(&lf.startFileID, "startFileId", "", "First file ID to list, with --startFileName")
	f.IntVar(&lf.maxToShow, "maxToShow", 0, "Maximum number of versions on the page")
	f.StringVar(&lf.prefix, "prefix", "", "Only list names with this prefix")
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.printFilePage(c.Context(), args[0], lf, a.api.ListFileVersions)
	}
	return c
}

func (a *app) printFilePage(
	ctx context.Context,
	bucketName string,
	lf listPageFlags,
	list func(context.Context, string, b2.ListQuery) (b2.FilePage, error),
) error {
	bucket, err := a.api.BucketByName(ctx, bucketName)
	if err != nil {
		return err
	}
	page, err := list(ctx, bucket.ID, b2.ListQuery{
		StartFileName: lf.startFileName,
		StartFileID:   lf.startFileID,
		Prefix:        lf.prefix,
		MaxCount:      lf.maxToShow,
	})
	if err != nil {
		return err
	}
	return a.printer.PrintJSON(page.Raw, output.IndentNarrow)
}

func newLsCmd(a *app) *cobra.Command {
	var long, versions, recursive bool
	c := &cobra.Command{
		Use:   "[--long] [--versions] [--recursive]",
		Short: "List the files in a folder of a bucket",
		Long: `Using the file naming convention that "/" separates folder names from
their contents, lists the files and folders in a given folder. When no
folder name is given, lists everything at the top level of the bucket.

With --long, each line shows the file ID, the action ("upload", "hide" or
"folder"), the date and time of upload, the size and the name.

With --versions, every version of each file is listed, not just the latest.

With --recursive, the contents of every folder are listed as well.`,
	}
	f := c.Flags()
	f.BoolVar(&long, "long", false, "Show ID, action, upload time and size")
	f.BoolVar(&versions, "versions", false, "List every version")
	f.BoolVar(&recursive, "recursive", false, "Descend into folders")
	pos := withPositionals(c, required("bucketName"), optional("folderName"))

	c.RunE = func(c *cobra.Command, args []string) error {
		bound := pos.bind(args)
		prefix := bound["folderName"]
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		bucket, err := a.api.BucketByName(c.Context(), bound["bucketName"])
		if err != nil {
			return err
		}
		list := a.api.ListFileNames
		if versions {
			list = a.api.ListFileVersions
		}
		delimiter := "/"
		if recursive {
			delimiter = ""
		}
		start := b2.ListQuery{Prefix: prefix, Delimiter: delimiter}

		return forEachPage(c.Context(), start,
			func(ctx context.Context, q b2.ListQuery) (b2.FilePage, error) {
				return list(ctx, bucket.ID, q)
			},
			func(p b2.FilePage) (b2.ListQuery, bool) {
				name, more := nextString(p.NextFileName)
				id, _ := nextString(p.NextFileID)
				next := start
				next.StartFileName, next.StartFileID = name, id
				return next, more
			},
			func(p b2.FilePage) error {
				for _, file := range p.Files {
					if err := a.printer.Print(lsLine(file, long)); err != nil {
						return err
					}
				}
				return nil
			})
	}
	return c
}

func lsLine(file b2.FileVersion, long bool) string {
	if !long {
		return file.Name
	}
	if file.Action == "folder" {
		return fmt.Sprintf("%83s  %6s  %10s  %8s  %9d  %s", "-", "-", "-", "-", 0, file.Name)
	}
	t := time.UnixMilli(file.UploadTimestamp).UTC()
	return fmt.Sprintf("%83s  %6s  %10s  %8s  %9d  %s",
		file.ID, file.Action, t.Format("2006-01-02"), t.Format("15:04:05"), file.ContentLength, file.Name)
}
