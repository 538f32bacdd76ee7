package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/b2"
)

func newCancelAllUnfinishedLargeFilesCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Cancel every unfinished large file in a bucket",
		Long:  "Lists all large files that have been started but not finished and cancels them.",
	}
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.eachUnfinished(c.Context(), args[0], func(file b2.FileVersion) error {
			if _, err := a.api.CancelLargeFile(c.Context(), file.ID); err != nil {
				return err
			}
			return a.printer.Print(file.ID, "canceled")
		})
	}
	return c
}

func newCancelLargeFileCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Cancel one unfinished large file",
	}
	withPositionals(c, required("fileId"))
	c.RunE = func(c *cobra.Command, args []string) error {
		if _, err := a.api.CancelLargeFile(c.Context(), args[0]); err != nil {
			return err
		}
		return a.printer.Print(args[0], "canceled")
	}
	return c
}

func newListPartsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "List the uploaded parts of a large file",
		Long: `Lists all of the parts that have been uploaded for the given large file,
which must be a file that was started but not finished or canceled.

Each line shows the part number, its size and its SHA1.`,
	}
	withPositionals(c, required("largeFileId"))
	c.RunE = func(c *cobra.Command, args []string) error {
		fetch := func(ctx context.Context, start int) (b2.PartPage, error) {
			return a.api.ListParts(ctx, args[0], start)
		}
		next := func(p b2.PartPage) (int, bool) {
			if p.NextPartNumber == nil {
				return 0, false
			}
			return *p.NextPartNumber, true
		}
		return forEachPage(c.Context(), 0, fetch, next, func(p b2.PartPage) error {
			for _, part := range p.Parts {
				if err := a.printer.Printf("%5d  %9d  %s", part.PartNumber, part.ContentLength, part.ContentSha1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return c
}

func newListUnfinishedLargeFilesCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "List the unfinished large files of a bucket",
		Long: `Lists all of the large files in the bucket that were started but not
finished or canceled. Each line shows the file ID, name, content type and
file info.`,
	}
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		return a.eachUnfinished(c.Context(), args[0], func(file b2.FileVersion) error {
			return a.printer.Printf("%s %s %s %s", file.ID, file.Name, file.ContentType, infoText(file.Info))
		})
	}
	return c
}

// eachUnfinished visits every unfinished large file of a bucket.
func (a *app) eachUnfinished(ctx context.Context, bucketName string, visit func(b2.FileVersion) error) error {
	bucket, err := a.api.BucketByName(ctx, bucketName)
	if err != nil {
		return err
	}
	fetch := func(ctx context.Context, start string) (b2.UnfinishedPage, error) {
		return a.api.ListUnfinishedLargeFiles(ctx, bucket.ID, start)
	}
	next := func(p b2.UnfinishedPage) (string, bool) { return nextString(p.NextFileID) }
	return forEachPage(ctx, "", fetch, next, func(p b2.UnfinishedPage) error {
		for _, file := range p.Files {
			if err := visit(file); err != nil {
				return err
			}
		}
		return nil
	})
}

// infoText renders file info as sorted key=value words.
func infoText(info map[string]string) string {
	words := make([]string, 0, len(info))
	for k, v := range info {
		words = append(words, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}
