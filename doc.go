/*
Package eye turns capture devices into pull based frame streams.

Backends in platform/... deliver frames from their own goroutines; a
platform.Stream hands them to the consumer through a single slot handoff
buffer that drops frames instead of queuing them. A stream.Transparent on top
emulates pixel formats the device cannot produce by converting each frame
with a convert.Converter. Frames are frame.Image values described by a
format.ImageFormat and can be written out with the record package.
*/
package eye

import "fmt"

type VersionInfo struct {
	Major, Minor, Patch uint
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

func (v VersionInfo) After(o VersionInfo) bool {
	switch {
	case v.Major != o.Major:
		return v.Major > o.Major
	case v.Minor != o.Minor:
		return v.Minor > o.Minor
	}
	return v.Patch > o.Patch
}

func (v VersionInfo) Before(o VersionInfo) bool {
	return !v.Equal(o) && !v.After(o)
}

var Version = VersionInfo{0, 3, 0}
