/*
Package synclog implements the append-only progress log one staging process
writes and other processes tail to learn which of its files have arrived.

Every line ends with '\n'. Markers are fixed strings, progress lines are a
two-character prefix followed by the file path:

	##STARTED##
	##SYMLINKS##
	S-<path>
	F-<path>
	##FINISHED##
	##FAILURE##

##FINISHED## and ##FAILURE## are mutually exclusive, written at most once and
always the last line.
*/
package synclog

import "strings"

type Marker string

const (
	MarkerStarted  Marker = "##STARTED##"
	MarkerSymlinks Marker = "##SYMLINKS##"
	MarkerFinished Marker = "##FINISHED##"
	MarkerFailure  Marker = "##FAILURE##"

	prefixStarted = "S-"
	prefixDone    = "F-"
)

func (m Marker) terminal() bool {
	return m == MarkerFinished || m == MarkerFailure
}

type LineKind int

const (
	LineUnknown LineKind = iota
	LineStarted
	LineSymlinks
	LineFileStarted
	LineFileDone
	LineFinished
	LineFailure
)

type Line struct {
	Kind LineKind
	Path string
}

// ParseLine classifies one line without its trailing newline.
func ParseLine(s string) Line {
	switch Marker(s) {
	case MarkerStarted:
		return Line{Kind: LineStarted}
	case MarkerSymlinks:
		return Line{Kind: LineSymlinks}
	case MarkerFinished:
		return Line{Kind: LineFinished}
	case MarkerFailure:
		return Line{Kind: LineFailure}
	}

	if path, ok := strings.CutPrefix(s, prefixStarted); ok {
		return Line{Kind: LineFileStarted, Path: path}
	}

	if path, ok := strings.CutPrefix(s, prefixDone); ok {
		return Line{Kind: LineFileDone, Path: path}
	}

	return Line{Kind: LineUnknown}
}
