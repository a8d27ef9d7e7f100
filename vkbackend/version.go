package vkbackend

/*
#include <stddef.h>
#include <stdint.h>

typedef void (*voidFunction)(void);
typedef voidFunction (*getInstanceProcAddrFunc)(void *instance, const char *name);
typedef int32_t (*enumerateInstanceVersionFunc)(uint32_t *version);

// callEnumerateInstanceVersion sets *found to 0 when the loader does not
// export vkEnumerateInstanceVersion, which is the case for Vulkan 1.0.
static int32_t callEnumerateInstanceVersion(void *getProcAddr, uint32_t *version, int *found) {
	getInstanceProcAddrFunc get = (getInstanceProcAddrFunc)getProcAddr;
	enumerateInstanceVersionFunc fn =
		(enumerateInstanceVersionFunc)get(NULL, "vkEnumerateInstanceVersion");
	if (fn == NULL) {
		*found = 0;
		return 0;
	}
	*found = 1;
	return fn(version);
}
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

// getInstanceProcAddr is the loader entry point handed out by GLFW. Init sets
// it. The bindings expose no vkEnumerateInstanceVersion, so it is resolved
// through this pointer.
var getInstanceProcAddr unsafe.Pointer

func enumerateInstanceVersion() (gfx.Version, error) {
	if getInstanceProcAddr == nil {
		return 0, errors.New("vkEnumerateInstanceVersion: Init was not called")
	}

	var (
		version C.uint32_t
		found   C.int
	)
	res := C.callEnumerateInstanceVersion(getInstanceProcAddr, &version, &found)
	return instanceVersion(found != 0, vk.Result(res), uint32(version))
}

// instanceVersion interprets the outcome of vkEnumerateInstanceVersion. A
// loader without the entry point only knows Vulkan 1.0.
func instanceVersion(found bool, res vk.Result, version uint32) (gfx.Version, error) {
	if !found {
		return gfx.MakeVersion(1, 0, 0), nil
	}
	if err := check(res, "vkEnumerateInstanceVersion"); err != nil {
		return 0, err
	}
	return gfx.Version(version), nil
}
