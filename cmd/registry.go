package cmd

import (
	"strings"
	"unicode"

	"github.com/spf13/cobra"
)

// descriptor declares one command. The command name is derived from ID and
// never written by hand.
type descriptor struct {
	// ID is the CamelCase identifier, e.g. "ListBuckets" for list-buckets.
	ID string
	// ForbidLoggingArguments keeps the argument vector out of every log line,
	// for commands that receive secrets as arguments.
	ForbidLoggingArguments bool
	New                    func(a *app) *cobra.Command
}

// Name is the canonical command name.
func (d descriptor) Name() string { return CanonicalName(d.ID) }

// registry lists every command, sorted by ID. registry_test.go checks that
// the names are unique and that the list is complete.
var registry = []descriptor{
	{ID: "AuthorizeAccount", ForbidLoggingArguments: true, New: newAuthorizeAccountCmd},
	{ID: "CancelAllUnfinishedLargeFiles", New: newCancelAllUnfinishedLargeFilesCmd},
	{ID: "CancelLargeFile", New: newCancelLargeFileCmd},
	{ID: "ClearAccount", New: newClearAccountCmd},
	{ID: "CopyFileById", New: newCopyFileByIDCmd},
	{ID: "CreateBucket", New: newCreateBucketCmd},
	{ID: "CreateKey", New: newCreateKeyCmd},
	{ID: "DeleteBucket", New: newDeleteBucketCmd},
	{ID: "DeleteFileVersion", New: newDeleteFileVersionCmd},
	{ID: "DeleteKey", New: newDeleteKeyCmd},
	{ID: "DownloadFileById", New: newDownloadFileByIDCmd},
	{ID: "DownloadFileByName", New: newDownloadFileByNameCmd},
	{ID: "EventServer", New: newEventServerCmd},
	{ID: "GetAccountInfo", New: newGetAccountInfoCmd},
	{ID: "GetBucket", New: newGetBucketCmd},
	{ID: "GetDownloadAuth", New: newGetDownloadAuthCmd},
	{ID: "GetDownloadUrlWithAuth", New: newGetDownloadURLWithAuthCmd},
	{ID: "GetFileInfo", New: newGetFileInfoCmd},
	{ID: "HideFile", New: newHideFileCmd},
	{ID: "ListBuckets", New: newListBucketsCmd},
	{ID: "ListFileNames", New: newListFileNamesCmd},
	{ID: "ListFileVersions", New: newListFileVersionsCmd},
	{ID: "ListKeys", New: newListKeysCmd},
	{ID: "ListParts", New: newListPartsCmd},
	{ID: "ListUnfinishedLargeFiles", New: newListUnfinishedLargeFilesCmd},
	{ID: "Ls", New: newLsCmd},
	{ID: "MakeFriendlyUrl", New: newMakeFriendlyURLCmd},
	{ID: "MakeUrl", New: newMakeURLCmd},
	{ID: "Sync", New: newSyncCmd},
	{ID: "UpdateBucket", New: newUpdateBucketCmd},
	{ID: "UploadFile", New: newUploadFileCmd},
	{ID: "Version", New: newVersionCmd},
}

// CanonicalName lower-cases the first character of id and turns every other
// non-lowercase character into a hyphen followed by its lower-case form:
// "ListBuckets" becomes "list-buckets".
func CanonicalName(id string) string {
	var b strings.Builder
	for i, r := range id {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// IdentifierFromName reverses CanonicalName for identifiers made of
// capitalized words.
func IdentifierFromName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == '-':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lookup(name string) (descriptor, bool) {
	for _, d := range registry {
		if d.Name() == name {
			return d, true
		}
	}
	return descriptor{}, false
}

// commandNames lists the canonical names in registry order.
func commandNames() []string {
	names := make([]string, 0, len(registry))
	for _, d := range registry {
		names = append(names, d.Name())
	}
	return names
}
