package syncer

import (
	"time"

	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/syncconfig"
)

// ActionKind is what an Action does.
type ActionKind int

const (
	Upload ActionKind = iota
	Download
	Hide
	Delete
)

// Action is one planned step of a sync.
type Action struct {
	Kind ActionKind
	// Name is the path relative to the sync roots.
	Name string
	// Source is the version transferred by Upload and Download.
	Source Version
	// Target is the version hidden or deleted, or for transfers the
	// destination B2 name or local path.
	Target     Version
	OldVersion bool
}

// verb is the report word for the action.
func (a Action) verb() string {
	switch a.Kind {
	case Upload:
		return "upload"
	case Download:
		return "dnload"
	case Hide:
		return "hide"
	default:
		return "delete"
	}
}

// String is the report line for the action.
func (a Action) String() string {
	line := a.verb() + " " + a.Name
	if a.OldVersion {
		line += " (old version)"
	}
	return line
}

// planner decides the actions for one pair of file lists.
type planner struct {
	cfg           syncconfig.Config
	destinationB2 bool
	now           time.Time
	// target maps a relative name to the destination path or B2 name.
	target func(name string) string
}

// plan walks both sorted lists and returns every action, or the first
// policy violation. Nothing is executed here.
func (p planner) plan(source, destination []File) ([]Action, error) {
	var actions []Action
	i, j := 0, 0
	for i < len(source) || j < len(destination) {
		var src, dst *File
		switch {
		case j >= len(destination) || (i < len(source) && source[i].Name < destination[j].Name):
			src = &source[i]
			i++
		case i >= len(source) || destination[j].Name < source[i].Name:
			dst = &destination[j]
			j++
		default:
			src, dst = &source[i], &destination[j]
			i++
			j++
		}

		fileActions, err := p.planFile(src, dst)
		if err != nil {
			return nil, err
		}
		actions = append(actions, fileActions...)
	}
	return actions, nil
}

func (p planner) planFile(src, dst *File) ([]Action, error) {
	if src != nil && !src.Present() {
		src = nil
	}
	if src == nil && dst == nil {
		return nil, nil
	}

	transfer := false
	if src != nil {
		var err error
		if transfer, err = p.shouldTransfer(*src, dst); err != nil {
			return nil, err
		}
	}

	var actions []Action
	if transfer {
		kind := Upload
		if !p.destinationB2 {
			kind = Download
		}
		actions = append(actions, Action{
			Kind:   kind,
			Name:   src.Name,
			Source: src.Latest(),
			Target: Version{Path: p.target(src.Name)},
		})
	}
	if dst != nil {
		actions = append(actions, p.cleanup(src != nil, transfer, *dst)...)
	}
	return actions, nil
}

func (p planner) shouldTransfer(src File, dst *File) (bool, error) {
	if dst == nil || !dst.Present() {
		return true, nil
	}
	srcVersion, dstVersion := src.Latest(), dst.Latest()
	threshold := int64(0)
	if p.cfg.CompareThreshold != nil {
		threshold = int64(*p.cfg.CompareThreshold)
	}

	switch p.cfg.CompareVersions {
	case syncconfig.CompareNone:
		return false, nil
	case syncconfig.CompareSize:
		return abs(srcVersion.Size-dstVersion.Size) > threshold, nil
	}

	diff := srcVersion.ModTime - dstVersion.ModTime
	switch {
	case abs(diff) <= threshold:
		return false, nil
	case diff > 0:
		return true, nil
	}
	switch p.cfg.NewerFileMode {
	case syncconfig.NewerSkip:
		return false, nil
	case syncconfig.NewerReplace:
		return true, nil
	}
	return false, clierr.Domainf(
		"source file is older than destination: %s with a time of %d cannot be synced to %s with a time of %d, unless --skipNewer or --replaceNewer is provided",
		srcVersion.Path, srcVersion.ModTime, dstVersion.Path, dstVersion.ModTime)
}

// cleanup plans deletions and hides of destination versions.
func (p planner) cleanup(sourcePresent, transfer bool, dst File) []Action {
	switch p.cfg.KeepOrDelete {
	case syncconfig.Delete:
		return p.deleteVersions(sourcePresent, transfer, dst)
	case syncconfig.KeepBeforeDelete:
		return p.expireVersions(sourcePresent, transfer, dst)
	}
	return nil
}

func (p planner) deleteVersions(sourcePresent, transfer bool, dst File) []Action {
	var actions []Action
	for i, v := range dst.Versions {
		// The newest version survives while it still mirrors the source.
		if i == 0 && sourcePresent && !transfer {
			continue
		}
		current := i == 0 && !sourcePresent
		if !p.destinationB2 && !current {
			continue
		}
		actions = append(actions, Action{Kind: Delete, Name: dst.Name, Target: v, OldVersion: !current})
	}
	return actions
}

func (p planner) expireVersions(sourcePresent, transfer bool, dst File) []Action {
	var actions []Action
	if !sourcePresent && dst.Present() {
		actions = append(actions, Action{Kind: Hide, Name: dst.Name, Target: Version{Path: dst.Latest().Path}})
	}

	nowMillis := p.now.UnixMilli()
	keepMillis := int64(p.cfg.KeepDays * float64(24*time.Hour/time.Millisecond))
	for i, v := range dst.Versions {
		// A version became old when the next newer one was uploaded; the
		// newest becomes old only when it is about to be replaced.
		var supersededAt int64
		switch {
		case i > 0:
			supersededAt = dst.Versions[i-1].UploadTimestamp
		case transfer:
			supersededAt = nowMillis
		default:
			continue
		}
		if nowMillis-supersededAt > keepMillis {
			actions = append(actions, Action{Kind: Delete, Name: dst.Name, Target: v, OldVersion: true})
		}
	}
	return actions
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
