// Package calib applies detector calibrations to loaded workspaces.
package calib

import (
	"fmt"

	"github.com/roach88/runcache/internal/workspace"
)

// Kind identifies the variant held by a Source.
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindWorkspace
	KindAlreadyCalibrated
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFile:
		return "file"
	case KindWorkspace:
		return "workspace"
	case KindAlreadyCalibrated:
		return "already-calibrated"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Source is where a calibration comes from. The zero value is None.
type Source struct {
	kind Kind
	path string
	ws   *workspace.Workspace
	tag  string
}

// None returns the empty source.
func None() Source {
	return Source{}
}

// FromFile returns a source reading a detector table from path.
func FromFile(path string) Source {
	if path == "" {
		return Source{}
	}
	return Source{kind: KindFile, path: path}
}

// FromWorkspace returns a source copying the calibration of ws.
func FromWorkspace(ws *workspace.Workspace) Source {
	if ws == nil {
		return Source{}
	}
	return Source{kind: KindWorkspace, ws: ws}
}

// AlreadyCalibrated marks data that was calibrated upstream. tag names the
// upstream calibration.
func AlreadyCalibrated(tag string) Source {
	return Source{kind: KindAlreadyCalibrated, tag: tag}
}

// Kind returns the variant.
func (s Source) Kind() Kind { return s.kind }

// IsNone reports whether s is the empty source.
func (s Source) IsNone() bool { return s.kind == KindNone }

// Path returns the file path of a KindFile source.
func (s Source) Path() string { return s.path }

// Workspace returns the workspace of a KindWorkspace source.
func (s Source) Workspace() *workspace.Workspace { return s.ws }

// Fingerprint is the calibration tag recorded on a workspace calibrated from s.
func (s Source) Fingerprint() string {
	switch s.kind {
	case KindFile:
		return "file:" + s.path
	case KindWorkspace:
		return "workspace:" + s.ws.Name
	case KindAlreadyCalibrated:
		if s.tag == "" {
			return "calibrated"
		}
		return "calibrated:" + s.tag
	default:
		return ""
	}
}

func (s Source) String() string {
	if s.kind == KindNone {
		return "none"
	}
	return s.Fingerprint()
}
