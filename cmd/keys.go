package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/b2"
)

func newCreateKeyCmd(a *app) *cobra.Command {
	var (
		bucket     string
		namePrefix string
		duration   int
	)
	c := &cobra.Command{
		Use:   "[--duration <validDurationSeconds>] [--bucket <bucketName>] [--namePrefix <namePrefix>]",
		Short: "Create a new application key",
		Long: `Creates a new application key. Prints the application key information,
the ID and the secret, on one line.

The capabilities are given as a comma-separated list, like
"readFiles,writeFiles". With --bucket the key is restricted to that bucket,
and with --namePrefix to files whose names start with the prefix.`,
	}
	f := c.Flags()
	f.StringVar(&bucket, "bucket", "", "Restrict the key to this bucket")
	f.StringVar(&namePrefix, "namePrefix", "", "Restrict the key to names with this prefix")
	f.IntVar(&duration, "duration", 0, "Seconds until the key expires")
	withPositionals(c, required("keyName"), required("capabilities"))

	c.RunE = func(c *cobra.Command, args []string) error {
		req := b2.CreateKeyRequest{
			Name:                 args[0],
			Capabilities:         commaList(args[1]),
			ValidDurationSeconds: optionalInt(c.Flags(), "duration", duration),
			NamePrefix:           optionalString(c.Flags(), "namePrefix", namePrefix),
		}
		if bucket != "" {
			b, err := a.api.BucketByName(c.Context(), bucket)
			if err != nil {
				return err
			}
			req.BucketID = &b.ID
		}
		key, err := a.api.CreateKey(c.Context(), req)
		if err != nil {
			return err
		}
		return a.printer.Print(key.ID, key.Secret)
	}
	return c
}

func newDeleteKeyCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Delete an application key",
		Long:  "Deletes the specified application key by its ID.",
	}
	withPositionals(c, required("applicationKeyId"))
	c.RunE = func(c *cobra.Command, args []string) error {
		key, err := a.api.DeleteKey(c.Context(), args[0])
		if err != nil {
			return err
		}
		return a.printer.Print(key.ID)
	}
	return c
}

func newListKeysCmd(a *app) *cobra.Command {
	var long bool
	c := &cobra.Command{
		Use:   "[--long]",
		Short: "List the application keys of the account",
		Long: `Lists the application keys for the current account.

The columns in the output are:
  - ID of the application key
  - Name of the application key

With --long, also:
  - Name of the bucket the key is restricted to, or "-"
  - Date of expiration, or "-"
  - Time of expiration, or "-"
  - Name prefix the key is restricted to, in single quotes
  - Comma-separated list of capabilities`,
	}
	c.Flags().BoolVar(&long, "long", false, "Show bucket, expiration, prefix and capabilities")
	withPositionals(c)

	c.RunE = func(c *cobra.Command, _ []string) error {
		names := &bucketNames{api: a.api}
		return forEachPage(c.Context(), "", a.api.ListKeys,
			func(p b2.KeyPage) (string, bool) { return nextString(p.NextApplicationKeyID) },
			func(p b2.KeyPage) error {
				for _, key := range p.Keys {
					line := fmt.Sprintf("%s   %-20s", key.ID, key.Name)
					if long {
						bucketName, err := names.describe(c.Context(), key.BucketID)
						if err != nil {
							return err
						}
						date, clock := expiration(key.ExpirationTimestamp)
						prefix := ""
						if key.NamePrefix != nil {
							prefix = *key.NamePrefix
						}
						line = fmt.Sprintf("%s   %-20s   %-20s   %-10s   %-8s   '%s'   %s",
							key.ID, key.Name, bucketName, date, clock, prefix,
							strings.Join(key.Capabilities, ","))
					}
					if err := a.printer.Print(line); err != nil {
						return err
					}
				}
				return nil
			})
	}
	return c
}

// bucketNames maps bucket ids to names, listing the buckets on first use.
type bucketNames struct {
	api    API
	byID   map[string]string
	loaded bool
}

func (n *bucketNames) describe(ctx context.Context, bucketID *string) (string, error) {
	if bucketID == nil {
		return "-", nil
	}
	if !n.loaded {
		buckets, err := n.api.ListBuckets(ctx, "")
		if err != nil {
			return "", err
		}
		n.byID = make(map[string]string, len(buckets))
		for _, b := range buckets {
			n.byID[b.ID] = b.Name
		}
		n.loaded = true
	}
	if name, ok := n.byID[*bucketID]; ok {
		return name, nil
	}
	return "id=" + *bucketID, nil
}

// expiration splits an expiration in epoch millis into UTC date and time.
func expiration(millis *int64) (string, string) {
	if millis == nil {
		return "-", "-"
	}
	t := time.UnixMilli(*millis).UTC()
	return t.Format("2006-01-02"), t.Format("15:04:05")
}
