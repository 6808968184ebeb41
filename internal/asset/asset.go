// Package asset holds what the three binary asset formats share: the asset
// kinds, the on-disk naming convention and the error taxonomy.
package asset

import (
	"fmt"
	"strings"
)

// FormatVersion is written into every header. All formats are at version 0.
const FormatVersion uint16 = 0

type Kind string

const (
	KindModel Kind = "model"
	KindThing Kind = "thing"
	KindSave  Kind = "save"
)

var kinds = []Kind{KindModel, KindThing, KindSave}

func Kinds() []Kind { return append([]Kind(nil), kinds...) }

func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown asset kind %q", s)
}

// Ext returns the output file extension, without the dot.
func (k Kind) Ext() string {
	switch k {
	case KindModel:
		return "model"
	case KindThing:
		return "thing"
	case KindSave:
		return "city"
	}
	return ""
}

// FullName joins an author and an asset name the way the engine keys its
// model and thing maps: "jarrett-test".
func FullName(author, name string) string {
	return author + "-" + name
}

// FileName returns "{author}-{name}.{ext}" for models and things and
// "{name}.city" for saves (author is ignored).
func FileName(k Kind, author, name string) string {
	if k == KindSave {
		return name + "." + k.Ext()
	}
	return FullName(author, name) + "." + k.Ext()
}

// KindFromPath guesses the asset kind from an output file extension.
func KindFromPath(path string) (Kind, bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", false
	}
	ext := path[i+1:]
	for _, k := range kinds {
		if k.Ext() == ext {
			return k, true
		}
	}
	return "", false
}
