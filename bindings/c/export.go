//go:build cgo

package main

/*
#include <stdint.h>
*/
import "C"

//export breakmark_breakpoint_mark
func breakmark_breakpoint_mark() {
	breakpointMark()
}

//export breakmark_api_version
func breakmark_api_version() C.uint32_t {
	return C.uint32_t(apiVersion())
}
