package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Node is one entry of the config volume's node_list: "sid : name : host",
// colon-separated and whitespace-trimmed per field.
type Node struct {
	SID  uint32
	Name string
	Host string
}

// NodeList is the parsed contents of config:/node_list.
type NodeList []Node

// ParseNodeList reads node_list line by line, skipping blank lines, mirroring
// original_source's process_line_node / split_and_trim.
func ParseNodeList(r io.Reader) (NodeList, error) {
	var nodes NodeList
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		parts, ok := splitAndTrim(sc.Text(), 3)
		if !ok {
			continue
		}

		sid, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: node_list:%d: bad sid %q", lineNum, parts[0])
		}
		if sid == 0 || sid == uint64(^uint32(0)) {
			return nil, fmt.Errorf("config: node_list:%d: sid must not be 0 or %d", lineNum, ^uint32(0))
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("config: node_list:%d: node name must not be empty", lineNum)
		}
		if parts[2] == "" {
			return nil, fmt.Errorf("config: node_list:%d: node host must not be empty", lineNum)
		}

		nodes = append(nodes, Node{SID: uint32(sid), Name: parts[1], Host: parts[2]})
	}
	return nodes, sc.Err()
}

// ByName looks up a node by name.
func (l NodeList) ByName(name string) (Node, bool) {
	for _, n := range l {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// BySID looks up a node by server ID.
func (l NodeList) BySID(sid uint32) (Node, bool) {
	for _, n := range l {
		if n.SID == sid {
			return n, true
		}
	}
	return Node{}, false
}

// splitAndTrim splits a line into exactly n colon-separated, whitespace-
// trimmed fields, returning ok=false for a blank line (one holding nothing
// but whitespace), matching original_source's
// split_and_trim used across every *_list parser.
func splitAndTrim(line string, n int) ([]string, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	raw := strings.SplitN(line, ":", n)
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(raw) {
			parts[i] = strings.TrimSpace(raw[i])
		}
	}
	return parts, true
}
