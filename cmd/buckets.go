package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/output"
)

// bucketSettings are the JSON valued flags shared by create-bucket and
// update-bucket.
type bucketSettings struct {
	bucketInfo     jsonValue
	corsRules      jsonValue
	lifecycleRules jsonValue
}

func (s *bucketSettings) register(flags *pflag.FlagSet) {
	flags.Var(&s.bucketInfo, "bucketInfo", "JSON object of bucket info")
	flags.Var(&s.corsRules, "corsRules", "JSON list of CORS rules")
	flags.Var(&s.lifecycleRules, "lifecycleRules", "JSON list of lifecycle rules")
}

func newCreateBucketCmd(a *app) *cobra.Command {
	var settings bucketSettings
	c := &cobra.Command{
		Use:   "[--bucketInfo <json>] [--corsRules <json>] [--lifecycleRules <json>]",
		Short: "Create a new bucket",
		Long: `Creates a new bucket and prints its ID.

The bucket type is allPublic or allPrivate.`,
	}
	settings.register(c.Flags())
	withPositionals(c, required("bucketName"), required("bucketType"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.CreateBucket(c.Context(), b2.CreateBucketRequest{
			Name:           args[0],
			Type:           args[1],
			BucketInfo:     settings.bucketInfo.value,
			CORSRules:      settings.corsRules.value,
			LifecycleRules: settings.lifecycleRules.value,
		})
		if err != nil {
			return err
		}
		return a.printer.Print(bucket.ID)
	}
	return c
}

func newDeleteBucketCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Delete an empty bucket",
		Long:  "Deletes the bucket with the given name.",
	}
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.BucketByName(c.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = a.api.DeleteBucket(c.Context(), bucket)
		return err
	}
	return c
}

func newGetBucketCmd(a *app) *cobra.Command {
	var showSize bool
	c := &cobra.Command{
		Use:   "[--showSize]",
		Short: "Print the settings of a bucket",
		Long: `Prints all of the information about the bucket, including bucket info,
CORS rules and lifecycle rules.

With --showSize the output also has fileCount, the number of file versions
in the bucket, and totalSize, the bytes they use. Counting lists every
version, which takes a while in large buckets.`,
	}
	c.Flags().BoolVar(&showSize, "showSize", false, "Count file versions and their total size")
	withPositionals(c, required("bucketName"))
	c.RunE = func(c *cobra.Command, args []string) error {
		// Listed fresh: a cached id carries no settings.
		buckets, err := a.api.ListBuckets(c.Context(), args[0])
		if err != nil {
			return err
		}
		var found *b2.Bucket
		for i := range buckets {
			if buckets[i].Name == args[0] {
				found = &buckets[i]
				break
			}
		}
		if found == nil {
			return clierr.Domainf("bucket not found: %s", args[0])
		}

		result := make(map[string]interface{}, len(found.Raw)+2)
		for k, v := range found.Raw {
			result[k] = v
		}
		if showSize {
			var count, size int64
			err := forEachPage(c.Context(), b2.ListQuery{},
				func(ctx context.Context, q b2.ListQuery) (b2.FilePage, error) {
					return a.api.ListFileVersions(ctx, found.ID, q)
				},
				func(p b2.FilePage) (b2.ListQuery, bool) {
					name, more := nextString(p.NextFileName)
					id, _ := nextString(p.NextFileID)
					return b2.ListQuery{StartFileName: name, StartFileID: id}, more
				},
				func(p b2.FilePage) error {
					for _, f := range p.Files {
						count++
						if f.Action != "hide" {
							size += f.ContentLength
						}
					}
					return nil
				})
			if err != nil {
				return err
			}
			result["fileCount"] = count
			result["totalSize"] = size
		}
		return a.printer.PrintJSON(result, output.IndentWide)
	}
	return c
}

func newListBucketsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "List the buckets in the account",
		Long: `Lists all of the buckets in the current account.

Output lines list the bucket ID, bucket type, and bucket name, and look
like this:

    98c960fd1cb4390c5e0f0519  allPublic   my-bucket`,
	}
	withPositionals(c)
	c.RunE = func(c *cobra.Command, _ []string) error {
		buckets, err := a.api.ListBuckets(c.Context(), "")
		if err != nil {
			return err
		}
		for _, b := range buckets {
			if err := a.printer.Printf("%s  %-10s  %s", b.ID, b.Type, b.Name); err != nil {
				return err
			}
		}
		return nil
	}
	return c
}

func newUpdateBucketCmd(a *app) *cobra.Command {
	var settings bucketSettings
	c := &cobra.Command{
		Use:   "[--bucketInfo <json>] [--corsRules <json>] [--lifecycleRules <json>]",
		Short: "Update the type and settings of a bucket",
		Long: `Updates the bucketType of an existing bucket and, when given, its bucket
info, CORS rules and lifecycle rules. Prints the updated bucket.`,
	}
	settings.register(c.Flags())
	withPositionals(c, required("bucketName"), required("bucketType"))
	c.RunE = func(c *cobra.Command, args []string) error {
		bucket, err := a.api.BucketByName(c.Context(), args[0])
		if err != nil {
			return err
		}
		raw, err := a.api.UpdateBucket(c.Context(), b2.UpdateBucketRequest{
			BucketID:       bucket.ID,
			Type:           args[1],
			BucketInfo:     settings.bucketInfo.value,
			CORSRules:      settings.corsRules.value,
			LifecycleRules: settings.lifecycleRules.value,
		})
		if err != nil {
			return err
		}
		return a.printer.PrintJSON(raw, output.IndentWide)
	}
	return c
}
