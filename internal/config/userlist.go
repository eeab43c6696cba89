package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// User is one entry of config:/user_list (or group_list): "id : name".
type User struct {
	ID   uint32
	Name string
}

// UserList is the parsed contents of config:/user_list or config:/group_list
// — both share the same two-field format, mirroring original_source's
// process_line_user / process_line_group.
type UserList []User

// ParseUserList reads a user_list or group_list file line by line.
func ParseUserList(r io.Reader) (UserList, error) {
	var users UserList
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		parts, ok := splitAndTrim(sc.Text(), 2)
		if !ok {
			continue
		}

		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: user_list:%d: bad id %q", lineNum, parts[0])
		}
		if id == uint64(^uint32(0)) {
			return nil, fmt.Errorf("config: user_list:%d: id must not be %d", lineNum, ^uint32(0))
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("config: user_list:%d: name must not be empty", lineNum)
		}

		users = append(users, User{ID: uint32(id), Name: parts[1]})
	}
	return users, sc.Err()
}

// ByID looks up a user (or group) by numeric ID.
func (l UserList) ByID(id uint32) (User, bool) {
	for _, u := range l {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// UserMapping is one entry of config:/user/<node-name> (or config:/user/default):
// "zfs-name : local-name", the per-node (or global default, when Node is
// unset) mapping between a ZFS user name and a node's own local user name,
// mirroring original_source's process_line_user_mapping.
type UserMapping struct {
	ZFSName   string
	LocalName string
	NodeSID   uint32 // 0 means the global default mapping
}

// ParseUserMapping reads one node's user-mapping (or group-mapping) file;
// nodeSID is 0 for the global default mapping (config:/user/default).
func ParseUserMapping(r io.Reader, nodeSID uint32) ([]UserMapping, error) {
	var mappings []UserMapping
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		parts, ok := splitAndTrim(sc.Text(), 2)
		if !ok {
			continue
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("config: user mapping:%d: zfs user name must not be empty", lineNum)
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("config: user mapping:%d: node user name must not be empty", lineNum)
		}
		mappings = append(mappings, UserMapping{ZFSName: parts[0], LocalName: parts[1], NodeSID: nodeSID})
	}
	return mappings, sc.Err()
}
