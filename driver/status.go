package driver

import "fmt"

// Status is the integer status code returned by every ACL native call (aclError).
type Status int32

// Status codes used by goacl, copied from acl_base.h and acl_rt.h.
const (
	Success Status = 0

	ErrorInvalidParam     Status = 100000
	ErrorUninitialize     Status = 100001
	ErrorRepeatInitialize Status = 100002
	ErrorBadAlloc         Status = 200000

	ErrorRtParamInvalid     Status = 107000
	ErrorRtInvalidDeviceID  Status = 107001
	ErrorRtContextNull      Status = 107002 // No context is current: the only recoverable code.
	ErrorRtStreamContext    Status = 107003
	ErrorRtEventTimestamp   Status = 107006
	ErrorRtMemoryAllocation Status = 207001
	ErrorRtInternalError    Status = 507000
)

var statusNames = map[Status]string{
	Success:                 "ACL_SUCCESS",
	ErrorInvalidParam:       "ACL_ERROR_INVALID_PARAM",
	ErrorUninitialize:       "ACL_ERROR_UNINITIALIZE",
	ErrorRepeatInitialize:   "ACL_ERROR_REPEAT_INITIALIZE",
	ErrorBadAlloc:           "ACL_ERROR_BAD_ALLOC",
	ErrorRtParamInvalid:     "ACL_ERROR_RT_PARAM_INVALID",
	ErrorRtInvalidDeviceID:  "ACL_ERROR_RT_INVALID_DEVICEID",
	ErrorRtContextNull:      "ACL_ERROR_RT_CONTEXT_NULL",
	ErrorRtStreamContext:    "ACL_ERROR_RT_STREAM_CONTEXT",
	ErrorRtEventTimestamp:   "ACL_ERROR_RT_EVENT_TIMESTAMP_INVALID",
	ErrorRtMemoryAllocation: "ACL_ERROR_RT_MEMORY_ALLOCATION",
	ErrorRtInternalError:    "ACL_ERROR_RT_INTERNAL_ERROR",
}

// String returns the ACL name of the status, or "ACL_ERROR(<code>)" for codes not listed here.
func (s Status) String() string {
	if name, found := statusNames[s]; found {
		return name
	}
	return fmt.Sprintf("ACL_ERROR(%d)", int32(s))
}

// Ok returns whether the status is Success.
func (s Status) Ok() bool { return s == Success }
