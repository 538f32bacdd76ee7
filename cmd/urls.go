package cmd

import (
	"github.com/spf13/cobra"
)

// defaultDownloadAuthSeconds is one day.
const defaultDownloadAuthSeconds = 86400

func newGetDownloadAuthCmd(a *app) *cobra.Command {
	var (
		prefix   string
		duration int
	)
	c := &cobra.Command{
		Use:   "[--prefix <fileNamePrefix>] [--duration <durationInSeconds>]",
		Short: "Print a download authorization token for a bucket",
		Long: `Prints an authorization token that is valid only for downloading files
from the given bucket.

The token is valid for the duration specified, which defaults to 86400
seconds (one day). Only files whose names start with the prefix can be
downloaded with it; the default prefix matches every file.`,
	}
	c.Flags().StringVar(&prefix, "prefix", "", "File name prefix the token is limited to")
	c.Flags().IntVar(&duration, "duration", defaultDownloadAuthSeconds, "Seconds the token stays valid")
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.BucketByName(c.Context(), args[0])
		if err != nil {
			return err
		}
		token, err := a.api.GetDownloadAuthorization(c.Context(), bucket.ID, prefix, duration)
		if err != nil {
			return err
		}
		return a.printer.Print(token)
	}
	return c
}

func newGetDownloadURLWithAuthCmd(a *app) *cobra.Command {
	var duration int
	c := &cobra.Command{
		Use:   "[--duration <durationInSeconds>]",
		Short: "Print a download URL carrying its own authorization",
		Long: `Prints a URL to download the given file. The URL includes an
authorization token that allows downloads from the given bucket for files
whose names start with the given file name.

The URL works in a browser or with curl. The token is valid for the
duration specified, which defaults to 86400 seconds (one day).`,
	}
	c.Flags().IntVar(&duration, "duration", defaultDownloadAuthSeconds, "Seconds the token stays valid")
	withPositionals(c, required("bucketName"), required("fileName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.BucketByName(c.Context(), args[0])
		if err != nil {
			return err
		}
		token, err := a.api.GetDownloadAuthorization(c.Context(), bucket.ID, args[1], duration)
		if err != nil {
			return err
		}
		url, err := a.api.DownloadURLForFileName(args[0], args[1])
		if err != nil {
			return err
		}
		return a.printer.Print(url + "?Authorization=" + token)
	}
	return c
}

func newMakeURLCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Print the download URL of a file version",
		Long:  "Prints a URL that can be used to download the given file, if it is public.",
	}
	withPositionals(c, required("fileId"))
	c.RunE = func(_ *cobra.Command, args []string) error {
		url, err := a.api.DownloadURLForFileID(args[0])
		if err != nil {
			return err
		}
		return a.printer.Print(url)
	}
	return c
}

func newMakeFriendlyURLCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Print the download URL of a file name",
		Long: `Prints a short URL that can be used to download the latest version of
the given file, if it is public.`,
	}
	withPositionals(c, required("bucketName"), required("fileName"))
	c.RunE = func(_ *cobra.Command, args []string) error {
		url, err := a.api.DownloadURLForFileName(args[0], args[1])
		if err != nil {
			return err
		}
		return a.printer.Print(url)
	}
	return c
}
