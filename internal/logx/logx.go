// Package logx is a thin stage-tagged wrapper around the standard
// library logger, matching the teacher's own log.Printf-with-a-tag style.
package logx

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// Tag returns a logger bound to a short stage tag, e.g. Tag("pii").
type Tagged struct {
	tag string
}

func Tag(tag string) Tagged {
	return Tagged{tag: tag}
}

func (t Tagged) Printf(format string, args ...interface{}) {
	std.Printf("[%s] "+format, append([]interface{}{t.tag}, args...)...)
}

func (t Tagged) Println(args ...interface{}) {
	std.Println(append([]interface{}{"[" + t.tag + "]"}, args...)...)
}
