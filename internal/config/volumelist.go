package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// VolumeIDConfig is VOLUME_ID_CONFIG of original_source: the reserved volume
// ID carrying the node/volume/user/group lists themselves.
const VolumeIDConfig uint32 = 1

// Volume is one entry of config:/volume_list: "vid : name : mountpoint".
// The volume's master node is not part of this record, and this package
// does not parse config:/volume (the hierarchy file).
type Volume struct {
	VID        uint32
	Name       string
	Mountpoint string
}

// VolumeList is the parsed contents of config:/volume_list.
type VolumeList []Volume

// ParseVolumeList reads volume_list line by line, mirroring
// original_source's process_line_volume (minus the master-hierarchy walk,
// which nothing in this package performs).
func ParseVolumeList(r io.Reader) (VolumeList, error) {
	var vols VolumeList
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		parts, ok := splitAndTrim(sc.Text(), 3)
		if !ok {
			continue
		}

		vid, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: volume_list:%d: bad vid %q", lineNum, parts[0])
		}
		if vid == 0 || vid == uint64(^uint32(0)) {
			return nil, fmt.Errorf("config: volume_list:%d: vid must not be 0 or %d", lineNum, ^uint32(0))
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("config: volume_list:%d: volume name must not be empty", lineNum)
		}
		if parts[2] == "" {
			return nil, fmt.Errorf("config: volume_list:%d: volume mountpoint must not be empty", lineNum)
		}

		vols = append(vols, Volume{VID: uint32(vid), Name: parts[1], Mountpoint: parts[2]})
	}
	return vols, sc.Err()
}

// ByVID looks up a volume by ID.
func (l VolumeList) ByVID(vid uint32) (Volume, bool) {
	for _, v := range l {
		if v.VID == vid {
			return v, true
		}
	}
	return Volume{}, false
}

// HasConfigVolume reports whether the config volume (VolumeIDConfig) is
// present, which original_source's read_volume_list treats as fatal when
// missing ("Config volume does not exist").
func (l VolumeList) HasConfigVolume() bool {
	_, ok := l.ByVID(VolumeIDConfig)
	return ok
}

// VolumeHierarchyEntry names the direct master of one volume. In the
// original, config:/volume encodes node nesting by leading spaces; this
// package has no loader that reads that file into entries.
type VolumeHierarchyEntry struct {
	VID    uint32
	Master string
}
