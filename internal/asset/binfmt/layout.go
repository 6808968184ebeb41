package binfmt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Layout fixes the byte order of every float-bearing part of the three
// formats. Integers and size prefixes are big-endian in every layout.
//
// The legacy encoder wrote model geometry big-endian but packed thing
// placement offsets, config float values and save instance positions in the
// host's native order (little-endian on every platform it ran on). The
// engine's reader expects big-endian everywhere. Both layouts are kept until
// the reader side is confirmed.
type Layout struct {
	Name        string
	Geometry    binary.ByteOrder
	Placement   binary.ByteOrder
	ConfigFloat binary.ByteOrder
	Instance    binary.ByteOrder
}

var (
	LegacyLayout = Layout{
		Name:        "legacy",
		Geometry:    binary.BigEndian,
		Placement:   binary.LittleEndian,
		ConfigFloat: binary.LittleEndian,
		Instance:    binary.LittleEndian,
	}
	BigEndianLayout = Layout{
		Name:        "big-endian",
		Geometry:    binary.BigEndian,
		Placement:   binary.BigEndian,
		ConfigFloat: binary.BigEndian,
		Instance:    binary.BigEndian,
	}
)

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return LegacyLayout, nil
	case "big-endian", "bigendian", "big":
		return BigEndianLayout, nil
	}
	return Layout{}, fmt.Errorf("unknown float layout %q (want legacy or big-endian)", s)
}
